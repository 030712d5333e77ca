package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

// criteriaFlags collects segmentation flags shared by preview and campaign create
type criteriaFlags struct {
	tags     []string
	statuses []string
	recency  int
	channel  string
}

func (f *criteriaFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.tags, "tag", nil, "Match contacts having any of these tags (repeatable)")
	fs.StringSliceVar(&f.statuses, "status", nil, "Match contacts in these lifecycle statuses (lead, prospect, customer, inactive)")
	fs.IntVar(&f.recency, "recency", 0, "Only contacts who interacted within the last N days (0 disables)")
	fs.StringVar(&f.channel, "channel", "whatsapp", "Campaign channel (whatsapp, email)")
}

func (f *criteriaFlags) criteria() (segment.Criteria, error) {
	statuses, err := segment.ParseStatuses(f.statuses)
	if err != nil {
		return segment.Criteria{}, err
	}
	channel, err := segment.ParseChannel(f.channel)
	if err != nil {
		return segment.Criteria{}, err
	}

	c := segment.Criteria{
		Tags:              f.tags,
		Statuses:          statuses,
		RecencyWindowDays: f.recency,
		Channel:           channel,
	}
	if err := c.Validate(); err != nil {
		return segment.Criteria{}, err
	}
	return c.Normalize(), nil
}

// readRosterFile reads contacts from a JSON file ("-" for stdin).
// Accepted shapes: a contact array, a saved snapshot, or a backend client list.
func readRosterFile(path string) ([]segment.Contact, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return parseRoster(data)
}

func parseRoster(data []byte) ([]segment.Contact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("roster file is empty")
	}

	if data[0] == '[' {
		var contacts []segment.Contact
		if err := json.Unmarshal(data, &contacts); err != nil {
			return nil, fmt.Errorf("failed to parse roster: %w", err)
		}
		return nonNilContacts(contacts), nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	if _, ok := probe["clients"]; ok {
		var list backend.ClientListResponse
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse client list: %w", err)
		}
		contacts := make([]segment.Contact, len(list.Clients))
		for i, r := range list.Clients {
			contacts[i] = r.ToContact()
		}
		return contacts, nil
	}

	var snap roster.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return nonNilContacts(snap.Contacts), nil
}

func nonNilContacts(contacts []segment.Contact) []segment.Contact {
	if contacts == nil {
		return []segment.Contact{}
	}
	return contacts
}
