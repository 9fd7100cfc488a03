// Package permission evaluates permission grants and resource constraints.
//
// Grants are checked per resource type and action. A rule is either denied,
// allowed, or filtered; filtered rules only admit resources whose fields equal
// the rule's filter values. For list operations the same rules are turned into
// a [Filter] that storage backends apply to their queries.
//
// Resource constraints (client ids, user ids, user id patterns) and the
// organization scope of operators are checked independently of grants. An
// empty constraint list always means unrestricted.
package permission
