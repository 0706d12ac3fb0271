// Package auth provides bearer-token authorisation for the covers API.
//
// There are no user accounts. Operators mint long-lived HS256 tokens with
// the `token` command and hand them to dashboards and automations:
//
//	graylogic-covers token --subject wall-panel --role viewer
//
// A three-tier role model decides what a token may do:
//
//	viewer   → read covers, history and entry options
//	operator → viewer + overrides, shading and recalibration
//	admin    → operator + changing entry options, reading the audit trail
//
// Tokens are validated by signature only; revoking one means rotating
// security.jwt.secret.
package auth
