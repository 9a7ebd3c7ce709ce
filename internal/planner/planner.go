// Package planner turns a GraphQL root field into SQL. ParseRequest lowers
// the field to a Request; Compile turns the Request into a QueryPlan holding
// the top-level statement, one batch statement per selected to-many
// association, an optional count statement and one statement per aggregate
// slot, together with the shape that maps their rows back to response keys.
package planner
