package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"golang.org/x/crypto/ssh"
)

// ErrNoRecipients is returned when encryption is enabled without any recipient.
var ErrNoRecipients = errors.New("no age recipients configured")

// ParseRecipients parses age1... and ssh-ed25519/ssh-rsa public keys.
// Duplicates and blank entries are ignored.
func ParseRecipients(values []string) ([]age.Recipient, error) {
	values = dedupe(values)
	if len(values) == 0 {
		return nil, ErrNoRecipients
	}
	parsed := make([]age.Recipient, 0, len(values))
	for _, value := range values {
		recipient, err := parseRecipient(value)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, recipient)
	}
	return parsed, nil
}

func parseRecipient(value string) (age.Recipient, error) {
	switch {
	case strings.HasPrefix(value, "age1"):
		r, err := age.ParseX25519Recipient(value)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %q: %w", shorten(value), err)
		}
		return r, nil
	case strings.HasPrefix(strings.ToLower(value), "ssh-"):
		r, err := agessh.ParseRecipient(value)
		if err != nil {
			return nil, fmt.Errorf("invalid ssh recipient %q: %w", shorten(value), err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported recipient format: %q", shorten(value))
	}
}

// DescribeRecipient returns a log-safe identifier: the SHA256 fingerprint for
// ssh keys, the shortened key for age keys.
func DescribeRecipient(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(value), "ssh-") {
		pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(value))
		if err == nil {
			desc := pub.Type() + " " + ssh.FingerprintSHA256(pub)
			if comment != "" {
				desc += " (" + comment + ")"
			}
			return desc
		}
	}
	return shorten(value)
}

// ReadRecipientFile reads one recipient per line; '#' starts a comment line.
func ReadRecipientFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipient file: %w", err)
	}
	defer f.Close()

	var recipients []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		recipients = append(recipients, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recipient file: %w", err)
	}
	return recipients, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func shorten(value string) string {
	if len(value) <= 24 {
		return value
	}
	return value[:16] + "…" + value[len(value)-6:]
}
