package notion

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// Workspace is one space the account can export.
type Workspace struct {
	ID   string
	Name string
}

// Label is the human-readable form used in prompts.
func (w Workspace) Label() string {
	if w.Name == "" || w.Name == w.ID {
		return w.ID
	}
	return fmt.Sprintf("%s (%s)", w.Name, w.ID)
}

// UserContent is the part of loadUserContent the backup needs.
type UserContent struct {
	// UserID is the first key of recordMap.notion_user. The account is assumed
	// to own a single user record; extra entries are ignored.
	UserID     string
	Workspaces []Workspace
}

// Find returns the enumerated workspace with id.
func (u *UserContent) Find(id string) (Workspace, bool) {
	for _, w := range u.Workspaces {
		if w.ID == id {
			return w, true
		}
	}
	return Workspace{}, false
}

// EnumerateWorkspaces lists the account's workspaces in server order.
func (c *Client) EnumerateWorkspaces(ctx context.Context) (*UserContent, error) {
	var raw []byte
	if err := c.Call(ctx, "loadUserContent", struct{}{}, &raw); err != nil {
		return nil, err
	}
	return parseUserContent(raw)
}

// parseUserContent walks the record maps in document order; encoding/json
// maps would lose the order that "first user" and the default pick rely on.
func parseUserContent(raw []byte) (*UserContent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("loadUserContent: %w: invalid JSON", ErrUnexpectedResponse)
	}
	recordMap := gjson.GetBytes(raw, "recordMap")
	if !recordMap.IsObject() {
		return nil, fmt.Errorf("loadUserContent: %w: missing recordMap", ErrUnexpectedResponse)
	}

	uc := &UserContent{}
	recordMap.Get("notion_user").ForEach(func(key, _ gjson.Result) bool {
		uc.UserID = key.String()
		return false
	})

	recordMap.Get("space").ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		name := value.Get("value.name").String()
		if name == "" {
			name = value.Get("value.value.name").String()
		}
		if name == "" {
			name = id
		}
		uc.Workspaces = append(uc.Workspaces, Workspace{ID: id, Name: name})
		return true
	})
	return uc, nil
}
