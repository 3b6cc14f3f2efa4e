// Package fanout derives unsolicited events from successful tool calls and
// pushes them to interested live sessions.
//
// Routing is declarative. Each Route names a tool, the event it produces, a
// Selector choosing recipients, an optional Predicate and a Build function
// for the event payload:
//
//	fanout.Route{
//		Tool:     "publish_article",
//		Event:    "article_published",
//		Selector: fanout.Followers(),
//		When:     fanout.StatusIs("published"),
//		Build:    func(c fanout.Completion) any { return c.Result },
//	}
//
// Engine.Dispatch evaluates the routes for a completion on a detached
// goroutine. Failures are logged and never reach the caller, whose primary
// response has already been sent. Delivery is ephemeral: recipients without a
// live connection are skipped and counted as dropped.
package fanout
