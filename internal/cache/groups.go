package cache

// Group names a set of cache entries derived from overlapping server state
// that must be invalidated together when a mutation of that kind commits.
type Group string

// Invalidation groups. Membership is static and declared here, not
// discovered at call sites, so the coupling between mutation kinds and
// affected views stays auditable.
const (
	// GroupTaskMutation covers creating or deleting work items: every task
	// list plus the dashboard counters change.
	GroupTaskMutation Group = "task_mutation"
	// GroupTaskUpdate covers edits and status changes to existing items.
	GroupTaskUpdate Group = "task_update"
	// GroupAttendanceChange covers check-in, check-out, and stale-session
	// cleanup.
	GroupAttendanceChange Group = "attendance_change"
	// GroupRosterChange covers worker roster mutations.
	GroupRosterChange Group = "roster_change"
)

// groupMembers is the declarative mutation-kind -> cached-views table.
var groupMembers = map[Group][]EntryID{
	GroupTaskMutation:     {EntryAdminWorkItems, EntryWorkerWorkItems, EntryDashboard},
	GroupTaskUpdate:       {EntryAdminWorkItems, EntryWorkerWorkItems, EntryDashboard},
	GroupAttendanceChange: {EntryTodayAttendance, EntryDashboard},
	GroupRosterChange:     {EntryWorkerRoster, EntryDashboard},
}

// EntriesForGroups returns the union of the groups' members in declaration
// order, without duplicates.
func EntriesForGroups(groups ...Group) []EntryID {
	var out []EntryID
	seen := map[EntryID]struct{}{}
	for _, group := range groups {
		for _, id := range groupMembers[group] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
