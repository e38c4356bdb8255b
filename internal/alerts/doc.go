// Package alerts evaluates threshold rules against entropy results and
// delivers firing/resolved notifications to Slack, Teams or generic HTTP
// webhooks. A typical rule flags a distribution collapsing onto a few
// categories ("normalized < 0.2") or a source whose counts are rejected
// ("state == invalid").
package alerts
