// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"github.com/instruktai/teleclaude/internal/store"
)

// Tool names served over the socket.
const (
	ToolListComputers     = "list_computers"
	ToolListProjects      = "list_projects"
	ToolListSessions      = "list_sessions"
	ToolStartSession      = "start_session"
	ToolSendMessage       = "send_message"
	ToolSendFile          = "send_file"
	ToolGetSessionData    = "get_session_data"
	ToolEndSession        = "end_session"
	ToolStopNotifications = "stop_notifications"
	ToolDeploy            = "deploy"
	ToolEscalate          = "escalate"
	ToolPinSession        = "pin_session"
	ToolUnpinSession      = "unpin_session"
	ToolListSticky        = "list_sticky"
)

// allTools lists every tool name.
var allTools = []string{
	ToolListComputers, ToolListProjects, ToolListSessions, ToolStartSession,
	ToolSendMessage, ToolSendFile, ToolGetSessionData, ToolEndSession,
	ToolStopNotifications, ToolDeploy, ToolEscalate,
	ToolPinSession, ToolUnpinSession, ToolListSticky,
}

// exclusions maps each role tier to the tools it may not see. The escalate
// tool is visible only to customer sessions; every other tier excludes it.
var exclusions = map[store.HumanRole]map[string]bool{
	store.RoleAdmin: exclude(ToolEscalate),
	store.RoleMember: exclude(
		ToolEscalate, ToolDeploy),
	store.RoleContributor: exclude(
		ToolEscalate, ToolDeploy, ToolEndSession),
	store.RoleNewcomer: exclude(
		ToolEscalate, ToolDeploy, ToolEndSession, ToolStartSession, ToolSendFile,
		ToolPinSession, ToolUnpinSession),
	store.RoleUnauthorized: exclude(allTools...),
	// Customer is the strictest tier: help-desk relevant operations only,
	// plus escalate.
	store.RoleCustomer: exclude(
		ToolListComputers, ToolListProjects, ToolListSessions, ToolStartSession,
		ToolSendFile, ToolEndSession, ToolDeploy,
		ToolPinSession, ToolUnpinSession, ToolListSticky),
}

// RoleWorker is a mesh-internal tier between member and contributor.
const RoleWorker store.HumanRole = "worker"

func init() {
	exclusions[RoleWorker] = exclude(ToolEscalate, ToolDeploy, ToolEndSession)
}

func exclude(tools ...string) map[string]bool {
	m := make(map[string]bool, len(tools))
	for _, t := range tools {
		m[t] = true
	}
	return m
}

// Allowed reports whether the role may call the tool. Unknown roles get the
// unauthorized tier.
func Allowed(role store.HumanRole, tool string) bool {
	excluded, ok := exclusions[role]
	if !ok {
		excluded = exclusions[store.RoleUnauthorized]
	}
	return !excluded[tool]
}

// VisibleTools lists the tools a role may call.
func VisibleTools(role store.HumanRole) []string {
	var out []string
	for _, t := range allTools {
		if Allowed(role, t) {
			out = append(out, t)
		}
	}
	return out
}
