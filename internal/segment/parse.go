package segment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCriteria is returned by Criteria.Validate
var ErrInvalidCriteria = errors.New("invalid criteria")

// ParseStatus parses a lifecycle status name, case-insensitively
func ParseStatus(s string) (LifecycleStatus, error) {
	status := LifecycleStatus(s).canonical()
	if !status.Valid() {
		return StatusUnknown, fmt.Errorf("unknown lifecycle status %q", s)
	}
	return status, nil
}

// ParseStatuses parses a list of status names, skipping blanks
func ParseStatuses(names []string) ([]LifecycleStatus, error) {
	statuses := make([]LifecycleStatus, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		s, err := ParseStatus(name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// ParseChannel parses a channel name. An empty name yields ChannelWhatsApp.
func ParseChannel(s string) (Channel, error) {
	ch := Channel(s).canonical()
	if !ch.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return ch.OrDefault(), nil
}

// Validate checks that c only uses known statuses and channels and a non-negative window
func (c Criteria) Validate() error {
	if c.RecencyWindowDays < 0 {
		return fmt.Errorf("%w: recency_window_days must not be negative", ErrInvalidCriteria)
	}
	for _, s := range c.Statuses {
		if !s.canonical().Valid() {
			return fmt.Errorf("%w: unknown lifecycle status %q", ErrInvalidCriteria, s)
		}
	}
	if !c.Channel.canonical().Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidCriteria, c.Channel)
	}
	return nil
}

// Normalize returns a copy of c with blank tags dropped, statuses and channel
// lower-cased and the channel defaulted
func (c Criteria) Normalize() Criteria {
	out := Criteria{
		RecencyWindowDays: c.RecencyWindowDays,
		Channel:           c.Channel.OrDefault(),
	}
	if out.RecencyWindowDays < 0 {
		out.RecencyWindowDays = 0
	}
	for _, tag := range c.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}
	for _, s := range c.Statuses {
		out.Statuses = append(out.Statuses, s.canonical())
	}
	return out
}

// IsEmpty reports whether c restricts nothing on a whatsapp campaign
func (c Criteria) IsEmpty() bool {
	return len(c.Tags) == 0 && len(c.Statuses) == 0 && c.RecencyWindowDays <= 0 && c.Channel.OrDefault() == ChannelWhatsApp
}
