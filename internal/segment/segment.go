// Package segment narrows a contact roster to the recipients of a messaging campaign.
package segment

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"
)

// LifecycleStatus is a coarse CRM stage assigned to a contact
type LifecycleStatus string

const (
	// StatusUnknown is the zero value. It matches only when no status restriction is set.
	StatusUnknown  LifecycleStatus = ""
	StatusLead     LifecycleStatus = "lead"
	StatusProspect LifecycleStatus = "prospect"
	StatusCustomer LifecycleStatus = "customer"
	StatusInactive LifecycleStatus = "inactive"
)

// Statuses lists every known lifecycle status in funnel order
var Statuses = []LifecycleStatus{StatusLead, StatusProspect, StatusCustomer, StatusInactive}

// Valid reports whether s is one of the known lifecycle statuses
func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusLead, StatusProspect, StatusCustomer, StatusInactive:
		return true
	}
	return false
}

func (s LifecycleStatus) canonical() LifecycleStatus {
	return LifecycleStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

// UnmarshalJSON accepts status names in any case
func (s *LifecycleStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = LifecycleStatus(raw).canonical()
	return nil
}

// Channel is the delivery channel of a campaign
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Valid reports whether c is a known channel. The empty channel is valid and means whatsapp.
func (c Channel) Valid() bool {
	switch c {
	case "", ChannelWhatsApp, ChannelEmail:
		return true
	}
	return false
}

// OrDefault returns c in lower case, or ChannelWhatsApp when c is empty
func (c Channel) OrDefault() Channel {
	c = c.canonical()
	if c == "" {
		return ChannelWhatsApp
	}
	return c
}

func (c Channel) canonical() Channel {
	return Channel(strings.ToLower(strings.TrimSpace(string(c))))
}

// UnmarshalJSON accepts channel names in any case
func (c *Channel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Channel(raw).canonical()
	return nil
}

// Contact is a read-only view of a client record
type Contact struct {
	ID                string          `json:"id"`
	Tags              []string        `json:"tags,omitempty"`
	Status            LifecycleStatus `json:"status,omitempty"`
	Email             string          `json:"email,omitempty"`
	LastInteractionAt *time.Time      `json:"last_interaction_at,omitempty"`
}

// Criteria narrows a roster to a campaign audience. The zero value selects everyone.
type Criteria struct {
	Tags              []string          `json:"tags,omitempty"`
	Statuses          []LifecycleStatus `json:"statuses,omitempty"`
	RecencyWindowDays int               `json:"recency_window_days,omitempty"`
	Channel           Channel           `json:"channel,omitempty"`
}

// Day is the length of one recency window unit
const Day = 24 * time.Hour

// MaxRecencyWindowDays is the longest window a time.Duration can hold.
// Longer windows are evaluated as this one.
const MaxRecencyWindowDays = int(math.MaxInt64 / int64(Day))

// Segment returns the contacts matching c, evaluated against the current time
func Segment(contacts []Contact, c Criteria) []Contact {
	return SegmentAt(contacts, c, time.Now())
}

// SegmentAt returns the contacts matching c with recency measured from now.
// The input slice is not modified and the relative order of contacts is kept.
func SegmentAt(contacts []Contact, c Criteria, now time.Time) []Contact {
	m := newMatcher(c, now)
	result := make([]Contact, 0, len(contacts))
	for _, contact := range contacts {
		if m.match(&contact) {
			result = append(result, contact)
		}
	}
	return result
}

// Report holds the number of contacts left after each stage
type Report struct {
	Total       int `json:"total"`
	AfterTags   int `json:"after_tags"`
	AfterStatus int `json:"after_status"`
	AfterRecent int `json:"after_recency"`
	AfterReach  int `json:"after_channel"`
}

// Explain runs the stages in order and reports survivors per stage.
// AfterReach always equals len(SegmentAt) for the same arguments.
func Explain(contacts []Contact, c Criteria, now time.Time) Report {
	m := newMatcher(c, now)
	r := Report{Total: len(contacts)}
	for i := range contacts {
		contact := &contacts[i]
		if !m.matchTags(contact) {
			continue
		}
		r.AfterTags++
		if !m.matchStatus(contact) {
			continue
		}
		r.AfterStatus++
		if !m.matchRecency(contact) {
			continue
		}
		r.AfterRecent++
		if !m.matchChannel(contact) {
			continue
		}
		r.AfterReach++
	}
	return r
}

// DistinctTags returns the sorted set of tags used across contacts
func DistinctTags(contacts []Contact) []string {
	seen := make(map[string]struct{})
	for _, c := range contacts {
		for _, tag := range c.Tags {
			if tag == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

type matcher struct {
	tags     map[string]struct{}
	statuses map[LifecycleStatus]struct{}
	cutoff   time.Time
	recency  bool
	email    bool
}

func newMatcher(c Criteria, now time.Time) *matcher {
	m := &matcher{email: c.Channel.OrDefault() == ChannelEmail}

	if len(c.Tags) > 0 {
		m.tags = make(map[string]struct{}, len(c.Tags))
		for _, tag := range c.Tags {
			m.tags[tag] = struct{}{}
		}
	}

	if len(c.Statuses) > 0 {
		m.statuses = make(map[LifecycleStatus]struct{}, len(c.Statuses))
		for _, s := range c.Statuses {
			m.statuses[s.canonical()] = struct{}{}
		}
	}

	// 0 disables the window; negative windows are treated the same way
	if days := c.RecencyWindowDays; days > 0 {
		days = min(days, MaxRecencyWindowDays)
		m.recency = true
		m.cutoff = now.Add(-time.Duration(days) * Day)
	}

	return m
}

func (m *matcher) match(c *Contact) bool {
	return m.matchTags(c) && m.matchStatus(c) && m.matchRecency(c) && m.matchChannel(c)
}

func (m *matcher) matchTags(c *Contact) bool {
	if m.tags == nil {
		return true
	}
	for _, tag := range c.Tags {
		if _, ok := m.tags[tag]; ok {
			return true
		}
	}
	return false
}

func (m *matcher) matchStatus(c *Contact) bool {
	if m.statuses == nil {
		return true
	}
	_, ok := m.statuses[c.Status.canonical()]
	return ok
}

func (m *matcher) matchRecency(c *Contact) bool {
	if !m.recency {
		return true
	}
	if c.LastInteractionAt == nil {
		return false
	}
	return !c.LastInteractionAt.Before(m.cutoff)
}

func (m *matcher) matchChannel(c *Contact) bool {
	if !m.email {
		return true
	}
	return strings.TrimSpace(c.Email) != ""
}
