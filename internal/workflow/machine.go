// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package workflow

import (
	"strings"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// State is the workflow-relevant slice of a content item.
type State struct {
	Status               model.Status
	Stage                model.Stage
	ScheduledPublishDate *time.Time
	PublishDate          *time.Time
}

// StateOf extracts the workflow state of an item.
func StateOf(item *model.ContentItem) State {
	return State{
		Status:               item.Status,
		Stage:                item.WorkflowStage,
		ScheduledPublishDate: item.ScheduledPublishDate,
		PublishDate:          item.PublishDate,
	}
}

// Request asks for a status transition.
type Request struct {
	Target               model.Status
	Actor                Actor
	ScheduledPublishDate *time.Time
	Notes                string
}

// Decision is an accepted transition and the field values it implies.
type Decision struct {
	From                 model.Status
	To                   model.Status
	Stage                model.Stage
	ScheduledPublishDate *time.Time
	PublishDate          *time.Time
}

// Apply writes the decision's fields onto item.
func (d Decision) Apply(item *model.ContentItem) {
	item.Status = d.To
	item.WorkflowStage = d.Stage
	item.ScheduledPublishDate = d.ScheduledPublishDate
	item.PublishDate = d.PublishDate
}

// Decide checks a transition request against the current state and returns
// the resulting state, or an *Error with CodeIllegalTransition or
// CodePermissionDenied.
func Decide(cur State, req Request, now time.Time) (Decision, error) {
	if !cur.Status.Valid() {
		return Decision{}, Errorf(CodeIllegalTransition, "unknown current status %q", cur.Status)
	}
	if !req.Target.Valid() {
		return Decision{}, Errorf(CodeIllegalTransition, "unknown target status %q", req.Target)
	}

	required, ok := RequiredCapability(cur.Status, req.Target)
	if !ok {
		return Decision{}, Errorf(CodeIllegalTransition, "cannot change status from %s to %s", cur.Status, req.Target)
	}
	if !req.Actor.Capabilities.Has(required) {
		return Decision{}, Errorf(CodePermissionDenied, "changing status from %s to %s requires the %s capability", cur.Status, req.Target, required)
	}

	d := Decision{
		From:        cur.Status,
		To:          req.Target,
		Stage:       cur.Stage,
		PublishDate: cur.PublishDate,
	}
	if stage, ok := stageOnEntry[req.Target]; ok {
		d.Stage = stage
	}

	switch req.Target {
	case model.StatusScheduled:
		if req.ScheduledPublishDate == nil {
			return Decision{}, Errorf(CodeIllegalTransition, "scheduled publish date is required")
		}
		if !req.ScheduledPublishDate.After(now) {
			return Decision{}, Errorf(CodeIllegalTransition, "scheduled publish date %s is not in the future", req.ScheduledPublishDate.UTC().Format(time.RFC3339))
		}
		at := req.ScheduledPublishDate.UTC()
		d.ScheduledPublishDate = &at

	case model.StatusPublished:
		if d.PublishDate == nil {
			at := now.UTC()
			d.PublishDate = &at
		}

	case model.StatusRejected:
		if strings.TrimSpace(req.Notes) == "" {
			return Decision{}, Errorf(CodeIllegalTransition, "review notes are required when rejecting")
		}
	}

	return d, nil
}

// PublishDue computes the scheduled → published decision taken by the
// scheduled publish executor.
func PublishDue(cur State, now time.Time) (Decision, error) {
	return Decide(cur, Request{Target: model.StatusPublished, Actor: SchedulerActor}, now)
}

// AdvanceStage moves an in_review item forward through the review stages.
// The returned decision keeps the status unchanged.
func AdvanceStage(cur State, target model.Stage, actor Actor) (Decision, error) {
	if cur.Status != model.StatusInReview {
		return Decision{}, Errorf(CodeIllegalTransition, "workflow stage can only advance while in_review, item is %s", cur.Status)
	}
	if !isReviewStage(target) {
		return Decision{}, Errorf(CodeIllegalTransition, "stage %q is not a review stage", target)
	}
	if target.Rank() <= cur.Stage.Rank() {
		return Decision{}, Errorf(CodeIllegalTransition, "stage cannot move from %s to %s", cur.Stage, target)
	}
	if !actor.Capabilities.Has(CapReview) {
		return Decision{}, Errorf(CodePermissionDenied, "advancing the workflow stage requires the %s capability", CapReview)
	}

	return Decision{
		From:                 cur.Status,
		To:                   cur.Status,
		Stage:                target,
		ScheduledPublishDate: cur.ScheduledPublishDate,
		PublishDate:          cur.PublishDate,
	}, nil
}

func isReviewStage(s model.Stage) bool {
	for _, rs := range reviewStages {
		if rs == s {
			return true
		}
	}
	return false
}
