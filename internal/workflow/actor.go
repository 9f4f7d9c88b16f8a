// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package workflow

import (
	"strings"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// Capability is a permission granted by the external RBAC layer.
type Capability string

// Capabilities consumed by the state machine.
const (
	CapAuthor  Capability = "author"
	CapReview  Capability = "review"
	CapPublish Capability = "publish"
	CapArchive Capability = "archive"
)

// Capabilities is the set of capabilities an actor holds.
type Capabilities struct {
	Author  bool `json:"author"`
	Review  bool `json:"review"`
	Publish bool `json:"publish"`
	Archive bool `json:"archive"`
}

// Has reports whether c contains the capability.
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapAuthor:
		return c.Author
	case CapReview:
		return c.Review
	case CapPublish:
		return c.Publish
	case CapArchive:
		return c.Archive
	}
	return false
}

// AllCapabilities returns a set holding every capability.
func AllCapabilities() Capabilities {
	return Capabilities{Author: true, Review: true, Publish: true, Archive: true}
}

// ParseCapabilities parses a comma-separated capability list such as
// "author,review". Unknown names are ignored.
func ParseCapabilities(s string) Capabilities {
	var c Capabilities
	for _, part := range strings.Split(s, ",") {
		switch Capability(strings.ToLower(strings.TrimSpace(part))) {
		case CapAuthor:
			c.Author = true
		case CapReview:
			c.Review = true
		case CapPublish:
			c.Publish = true
		case CapArchive:
			c.Archive = true
		}
	}
	return c
}

// String renders the set in the same format ParseCapabilities accepts.
func (c Capabilities) String() string {
	var parts []string
	for _, capability := range []Capability{CapAuthor, CapReview, CapPublish, CapArchive} {
		if c.Has(capability) {
			parts = append(parts, string(capability))
		}
	}
	return strings.Join(parts, ",")
}

// Actor is whoever requests a transition.
type Actor struct {
	ID           string       `json:"id"`
	Capabilities Capabilities `json:"capabilities"`
}

// SchedulerActor is the identity of the scheduled publish executor.
var SchedulerActor = Actor{
	ID:           model.SystemSchedulerActor,
	Capabilities: Capabilities{Publish: true},
}
