package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/types"
)

// ResolveWorkspace picks the workspace to export: the explicit id wins, then
// the stored default, then the user's choice with the stored default (or the
// first workspace) preselected. Non-interactive runs without either id take
// the first workspace. The result must be one of uc's workspaces.
func (o *Orchestrator) ResolveWorkspace(ctx context.Context, uc *notion.UserContent) (notion.Workspace, error) {
	return o.resolveWorkspace(ctx, uc, o.opts.SpaceID)
}

func (o *Orchestrator) resolveWorkspace(ctx context.Context, uc *notion.UserContent, explicit string) (notion.Workspace, error) {
	if uc == nil || len(uc.Workspaces) == 0 {
		return notion.Workspace{}, phaseError(PhaseSelect,
			fmt.Errorf("%w: the account has no workspaces", ErrInvalidSelection), types.ExitSelectionError)
	}

	o.logger.Info("Available workspaces:")
	for _, ws := range uc.Workspaces {
		o.logger.Info("  - %s", ws.Label())
	}

	if id := strings.TrimSpace(explicit); id != "" {
		o.logger.Info("Selecting workspace %s", id)
		return o.lookupWorkspace(uc, id)
	}

	stored, _ := o.store.Get(config.KeySpaceID)
	stored = strings.TrimSpace(stored)

	if o.ui == nil {
		if stored != "" {
			o.logger.Info("Using stored workspace %s", stored)
			return o.lookupWorkspace(uc, stored)
		}
		ws := uc.Workspaces[0]
		o.logger.Info("No workspace configured, using the first one: %s", ws.Label())
		return ws, nil
	}

	def := 0
	if stored != "" {
		if idx := indexOfWorkspace(uc.Workspaces, stored); idx >= 0 {
			def = idx
		} else {
			o.logger.Warning("Stored workspace %s is no longer available", stored)
		}
	}
	idx, err := o.ui.SelectWorkspace(ctx, uc.Workspaces, def)
	if err != nil {
		return notion.Workspace{}, phaseError(PhaseSelect, err, types.ExitInputError)
	}
	if idx < 0 || idx >= len(uc.Workspaces) {
		return notion.Workspace{}, phaseError(PhaseSelect,
			fmt.Errorf("%w: choice %d out of range", ErrInvalidSelection, idx+1), types.ExitSelectionError)
	}
	return uc.Workspaces[idx], nil
}

func (o *Orchestrator) lookupWorkspace(uc *notion.UserContent, id string) (notion.Workspace, error) {
	if ws, ok := uc.Find(id); ok {
		return ws, nil
	}
	return notion.Workspace{}, phaseError(PhaseSelect,
		fmt.Errorf("%w: %s", ErrInvalidSelection, id), types.ExitSelectionError)
}

func indexOfWorkspace(workspaces []notion.Workspace, id string) int {
	for i, ws := range workspaces {
		if ws.ID == id {
			return i
		}
	}
	return -1
}

// rememberWorkspace stores id as the next run's default.
func (o *Orchestrator) rememberWorkspace(id string) error {
	if current, ok := o.store.Get(config.KeySpaceID); ok && current == id {
		return nil
	}
	if err := o.store.Set(config.KeySpaceID, id); err != nil {
		return phaseError(PhaseSelect, fmt.Errorf("store workspace id: %w", err), types.ExitConfigError)
	}
	o.logger.Debug("Stored %s as default workspace", id)
	return nil
}
