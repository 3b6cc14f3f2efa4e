// Package catalog declares the social publishing tool catalog and the
// declarative table mapping successful tool calls to push events.
//
// The embedding application supplies the business logic through Handlers;
// every field must be set or Build fails.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/fanout"
	"github.com/ggoodman/toolwire/tools"
)

// Version is advertised in welcome frames.
const Version = "1.0.0"

const (
	FollowUser           tools.Name = "follow_user"
	UnfollowUser         tools.Name = "unfollow_user"
	CreateArticle        tools.Name = "create_article"
	UpdateArticle        tools.Name = "update_article"
	PublishArticle       tools.Name = "publish_article"
	DeleteArticle        tools.Name = "delete_article"
	LikeArticle          tools.Name = "like_article"
	CommentOnArticle     tools.Name = "comment_on_article"
	GetFeed              tools.Name = "get_feed"
	GetNotifications     tools.Name = "get_notifications"
	MarkNotificationRead tools.Name = "mark_notification_read"
	SearchUsers          tools.Name = "search_users"
	UpdateProfile        tools.Name = "update_profile"
	FindSimilarArticles  tools.Name = "find_similar_articles"
)

const (
	EventUserFollowed     fanout.EventType = "user_followed"
	EventArticlePublished fanout.EventType = "article_published"
	EventArticleLiked     fanout.EventType = "article_liked"
	EventCommentAdded     fanout.EventType = "comment_added"
	EventNotificationRead fanout.EventType = "notification_read"
	EventProfileUpdated   fanout.EventType = "profile_updated"
	EventArticleDeleted   fanout.EventType = "article_deleted"
)

// Article statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type FollowUserArgs struct {
	Username string `json:"username" jsonschema:"minLength=1,description=Username of the account to follow"`
}

type UnfollowUserArgs struct {
	Username string `json:"username" jsonschema:"minLength=1,description=Username of the account to unfollow"`
}

type CreateArticleArgs struct {
	Title   string   `json:"title" jsonschema:"minLength=1,maxLength=200,description=Article title"`
	Content string   `json:"content" jsonschema:"description=Article body"`
	Status  string   `json:"status,omitempty" jsonschema:"enum=draft,enum=published,description=Initial status (default draft)"`
	Tags    []string `json:"tags,omitempty" jsonschema:"maxItems=10,description=Topic tags"`
}

type UpdateArticleArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
	Title     string `json:"title,omitempty" jsonschema:"minLength=1,maxLength=200"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty" jsonschema:"enum=draft,enum=published"`
}

type PublishArticleArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
}

type DeleteArticleArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
}

type LikeArticleArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
}

type CommentOnArticleArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
	Content   string `json:"content" jsonschema:"minLength=1,maxLength=5000,description=Comment text"`
}

type GetFeedArgs struct {
	Limit  int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,description=Page size (default 20)"`
	Offset int `json:"offset,omitempty" jsonschema:"minimum=0"`
}

type GetNotificationsArgs struct {
	Limit      int  `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
	UnreadOnly bool `json:"unread_only,omitempty"`
}

type MarkNotificationReadArgs struct {
	NotificationID string `json:"notification_id" jsonschema:"minLength=1"`
}

type SearchUsersArgs struct {
	Query string `json:"query" jsonschema:"minLength=2,description=Username or display name fragment"`
}

type UpdateProfileArgs struct {
	DisplayName string `json:"display_name,omitempty" jsonschema:"maxLength=50"`
	Bio         string `json:"bio,omitempty" jsonschema:"maxLength=500"`
}

type FindSimilarArticlesArgs struct {
	ArticleID string `json:"article_id" jsonschema:"minLength=1"`
	Limit     int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=20"`
}

// Handlers holds one function per tool.
type Handlers struct {
	FollowUser           func(ctx context.Context, p auth.Principal, args FollowUserArgs) tools.Outcome
	UnfollowUser         func(ctx context.Context, p auth.Principal, args UnfollowUserArgs) tools.Outcome
	CreateArticle        func(ctx context.Context, p auth.Principal, args CreateArticleArgs) tools.Outcome
	UpdateArticle        func(ctx context.Context, p auth.Principal, args UpdateArticleArgs) tools.Outcome
	PublishArticle       func(ctx context.Context, p auth.Principal, args PublishArticleArgs) tools.Outcome
	DeleteArticle        func(ctx context.Context, p auth.Principal, args DeleteArticleArgs) tools.Outcome
	LikeArticle          func(ctx context.Context, p auth.Principal, args LikeArticleArgs) tools.Outcome
	CommentOnArticle     func(ctx context.Context, p auth.Principal, args CommentOnArticleArgs) tools.Outcome
	GetFeed              func(ctx context.Context, p auth.Principal, args GetFeedArgs) tools.Outcome
	GetNotifications     func(ctx context.Context, p auth.Principal, args GetNotificationsArgs) tools.Outcome
	MarkNotificationRead func(ctx context.Context, p auth.Principal, args MarkNotificationReadArgs) tools.Outcome
	SearchUsers          func(ctx context.Context, p auth.Principal, args SearchUsersArgs) tools.Outcome
	UpdateProfile        func(ctx context.Context, p auth.Principal, args UpdateProfileArgs) tools.Outcome
	FindSimilarArticles  func(ctx context.Context, p auth.Principal, args FindSimilarArticlesArgs) tools.Outcome
}

type entry struct {
	def     tools.Definition
	handler tools.Handler
}

func def[A any](name tools.Name, desc string) tools.Definition {
	return tools.Definition{Name: name, Description: desc, Schema: tools.SchemaFor[A]()}
}

// bind adapts a typed handler. A nil fn yields a nil Handler.
func bind[A any](fn func(ctx context.Context, p auth.Principal, args A) tools.Outcome) tools.Handler {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, p auth.Principal, args tools.Args) tools.Outcome {
		var a A
		if err := args.Decode(&a); err != nil {
			return tools.Internal(err)
		}
		return fn(ctx, p, a)
	}
}

func (h Handlers) entries() []entry {
	return []entry{
		{def[FollowUserArgs](FollowUser, "Follow another user"), bind(h.FollowUser)},
		{def[UnfollowUserArgs](UnfollowUser, "Stop following a user"), bind(h.UnfollowUser)},
		{def[CreateArticleArgs](CreateArticle, "Create an article, optionally publishing it immediately"), bind(h.CreateArticle)},
		{def[UpdateArticleArgs](UpdateArticle, "Update one of your articles"), bind(h.UpdateArticle)},
		{def[PublishArticleArgs](PublishArticle, "Publish a draft article"), bind(h.PublishArticle)},
		{def[DeleteArticleArgs](DeleteArticle, "Delete one of your articles"), bind(h.DeleteArticle)},
		{def[LikeArticleArgs](LikeArticle, "Like an article"), bind(h.LikeArticle)},
		{def[CommentOnArticleArgs](CommentOnArticle, "Comment on an article"), bind(h.CommentOnArticle)},
		{def[GetFeedArgs](GetFeed, "Get published articles from users you follow"), bind(h.GetFeed)},
		{def[GetNotificationsArgs](GetNotifications, "List your notifications"), bind(h.GetNotifications)},
		{def[MarkNotificationReadArgs](MarkNotificationRead, "Mark a notification as read"), bind(h.MarkNotificationRead)},
		{def[SearchUsersArgs](SearchUsers, "Search users by username or display name"), bind(h.SearchUsers)},
		{def[UpdateProfileArgs](UpdateProfile, "Update your display name or bio"), bind(h.UpdateProfile)},
		{def[FindSimilarArticlesArgs](FindSimilarArticles, "Find articles similar to the given one"), bind(h.FindSimilarArticles)},
	}
}

// Definitions returns the tool definitions in catalog order.
func Definitions() []tools.Definition {
	es := Handlers{}.entries()
	out := make([]tools.Definition, 0, len(es))
	for _, e := range es {
		out = append(out, e.def)
	}
	return out
}

// Names returns every tool name in catalog order.
func Names() []tools.Name {
	defs := Definitions()
	out := make([]tools.Name, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

// Build binds h to the catalog. Every handler must be set.
func Build(h Handlers) (*tools.Registry, error) {
	es := h.entries()
	defs := make([]tools.Definition, 0, len(es))
	handlers := make(map[tools.Name]tools.Handler, len(es))
	var errs []error
	for _, e := range es {
		defs = append(defs, e.def)
		if e.handler == nil {
			errs = append(errs, fmt.Errorf("%w: %q", tools.ErrUnboundTool, e.def.Name))
			continue
		}
		handlers[e.def.Name] = e.handler
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return tools.NewRegistry(defs, handlers)
}

// Resources lists the resource kinds advertised in capability responses.
func Resources() []string {
	return []string{"articles", "comments", "feed", "notifications", "users"}
}

// Events lists every push event type clients may receive.
func Events() []string {
	out := make([]string, 0, 12)
	seen := map[fanout.EventType]struct{}{}
	for _, r := range Routes() {
		if _, ok := seen[r.Event]; ok {
			continue
		}
		seen[r.Event] = struct{}{}
		out = append(out, string(r.Event))
	}
	for _, ev := range []fanout.EventType{fanout.EventUserOnline, fanout.EventUserOffline, fanout.EventPresenceChanged, fanout.EventTypingStart, fanout.EventTypingStop} {
		out = append(out, string(ev))
	}
	return out
}

// Features lists the feature flags advertised in welcome frames.
func Features() []string {
	return []string{"tools", "notifications", "presence", "typing", "heartbeat"}
}
