package catalog

import (
	"github.com/ggoodman/toolwire/fanout"
	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/socialgraph"
)

// Routes returns the fan-out table for the catalog.
func Routes() []fanout.Route {
	published := fanout.StatusIs(StatusPublished)
	return []fanout.Route{
		{Tool: FollowUser, Event: EventUserFollowed, Selector: fanout.ResultUser("user_id"), Build: withActor("follower")},
		{Tool: CreateArticle, Event: EventArticlePublished, Selector: fanout.Followers(), When: published, Build: withActor("author")},
		{Tool: UpdateArticle, Event: EventArticlePublished, Selector: fanout.Followers(), When: published, Build: withActor("author")},
		{Tool: PublishArticle, Event: EventArticlePublished, Selector: fanout.Followers(), When: published, Build: withActor("author")},
		{Tool: LikeArticle, Event: EventArticleLiked, Selector: fanout.ResultUser("author_id"), Build: withActor("liker")},
		{Tool: CommentOnArticle, Event: EventCommentAdded, Selector: fanout.ResultUser("author_id"), Build: withActor("commenter")},
		{Tool: MarkNotificationRead, Event: EventNotificationRead, Selector: fanout.Self(), Build: resultOnly},
		{Tool: UpdateProfile, Event: EventProfileUpdated, Selector: fanout.Self(), Build: resultOnly},
		{Tool: DeleteArticle, Event: EventArticleDeleted, Selector: fanout.Self(), Build: resultOnly},
	}
}

// NewEngine builds a fan-out engine for the catalog's routes.
func NewEngine(sender fanout.Sender, graph socialgraph.Graph, opts ...fanout.Option) (*fanout.Engine, error) {
	opts = append(opts, fanout.WithKnownTools(Names()...))
	return fanout.NewEngine(sender, graph, Routes(), opts...)
}

// withActor builds a payload holding the tool result fields plus a summary of
// the acting user under key.
func withActor(key string) func(fanout.Completion) any {
	return func(c fanout.Completion) any {
		out := c.ResultMap()
		out[key] = protocol.UserSummary{
			ID:          c.Principal.ID,
			Username:    c.Principal.Username,
			DisplayName: c.Principal.Name(),
		}
		return out
	}
}

func resultOnly(c fanout.Completion) any {
	return c.ResultMap()
}
