// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package workflow implements the editorial state machine: which status
// transitions are legal, who may perform them, and which fields each
// transition stamps. It is pure logic with no storage or clock access.
package workflow

import (
	"github.com/olegiv/ocms-editorial/internal/model"
)

// transitions is the legal transition graph. The value is the capability the
// actor must hold to take the edge.
var transitions = map[model.Status]map[model.Status]Capability{
	model.StatusDraft: {
		model.StatusPendingReview: CapAuthor,
	},
	model.StatusPendingReview: {
		model.StatusInReview: CapReview,
		model.StatusRejected: CapReview,
		model.StatusDraft:    CapReview,
		model.StatusArchived: CapArchive,
	},
	model.StatusInReview: {
		model.StatusApproved:      CapReview,
		model.StatusRejected:      CapReview,
		model.StatusPendingReview: CapReview,
		model.StatusArchived:      CapArchive,
	},
	model.StatusApproved: {
		model.StatusScheduled: CapPublish,
		model.StatusPublished: CapPublish,
		model.StatusArchived:  CapArchive,
	},
	model.StatusScheduled: {
		model.StatusPublished: CapPublish,
		model.StatusApproved:  CapPublish,
		model.StatusArchived:  CapArchive,
	},
	model.StatusPublished: {
		model.StatusArchived: CapArchive,
	},
	model.StatusRejected: {
		model.StatusDraft: CapAuthor,
	},
	model.StatusArchived: {},
}

// stageOnEntry is the workflow stage an item lands on when entering a status.
// Statuses missing from the map keep the current stage.
var stageOnEntry = map[model.Status]model.Stage{
	model.StatusDraft:         model.StageCreation,
	model.StatusPendingReview: model.StageSectionEditorReview,
	model.StatusInReview:      model.StageFactChecking,
	model.StatusApproved:      model.StageFinalReview,
	model.StatusScheduled:     model.StageScheduling,
	model.StatusPublished:     model.StagePublished,
}

// reviewStages are the stages an item may advance through while in_review.
var reviewStages = []model.Stage{
	model.StageFactChecking,
	model.StageCopyEditing,
	model.StageFinalReview,
}

// CanTransition reports whether from → to is an edge of the legal graph.
func CanTransition(from, to model.Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// RequiredCapability returns the capability needed to take from → to.
func RequiredCapability(from, to model.Status) (Capability, bool) {
	c, ok := transitions[from][to]
	return c, ok
}

// Targets lists the statuses reachable from from in one step, in pipeline order.
func Targets(from model.Status) []model.Status {
	edges := transitions[from]
	out := make([]model.Status, 0, len(edges))
	for _, s := range model.AllStatuses {
		if _, ok := edges[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AllowedTargets lists the statuses actor may move an item to from from.
func AllowedTargets(from model.Status, caps Capabilities) []model.Status {
	var out []model.Status
	for _, to := range Targets(from) {
		if caps.Has(transitions[from][to]) {
			out = append(out, to)
		}
	}
	return out
}
