package devdomain

import (
	"context"
	"testing"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/catalog"
	"github.com/ggoodman/toolwire/socialgraph/memgraph"
	"github.com/ggoodman/toolwire/tools"
)

var (
	alice = auth.Principal{ID: "u-alice", Username: "alice", DisplayName: "Alice"}
	bob   = auth.Principal{ID: "u-bob", Username: "bob"}
)

func newDomain(t *testing.T) (*Domain, catalog.Handlers) {
	t.Helper()
	d := New(memgraph.New())
	d.AddUser(alice)
	d.AddUser(bob)
	return d, d.Handlers()
}

func data(t *testing.T, out tools.Outcome) map[string]any {
	t.Helper()
	if out.Err != nil || !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	m, ok := out.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", out.Data)
	}
	return m
}

func TestHandlersBindEveryTool(t *testing.T) {
	_, h := newDomain(t)
	reg, err := catalog.Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if reg.Len() != len(catalog.Names()) {
		t.Fatalf("expected %d tools, got %d", len(catalog.Names()), reg.Len())
	}
}

func TestFollowAndFeed(t *testing.T) {
	ctx := context.Background()
	_, h := newDomain(t)

	res := data(t, h.FollowUser(ctx, bob, catalog.FollowUserArgs{Username: "Alice"}))
	if res["user_id"] != alice.ID || res["new"] != true {
		t.Fatalf("unexpected follow result: %v", res)
	}
	if again := data(t, h.FollowUser(ctx, bob, catalog.FollowUserArgs{Username: "alice"})); again["new"] != false {
		t.Fatalf("expected repeat follow to be idempotent: %v", again)
	}
	if out := h.FollowUser(ctx, bob, catalog.FollowUserArgs{Username: "bob"}); out.Success {
		t.Fatalf("expected self follow to fail")
	}
	if out := h.FollowUser(ctx, bob, catalog.FollowUserArgs{Username: "nobody"}); out.Success || out.Error != "User not found: nobody" {
		t.Fatalf("unexpected result for unknown user: %+v", out)
	}

	draft := data(t, h.CreateArticle(ctx, alice, catalog.CreateArticleArgs{Title: "Draft", Content: "x"}))
	if draft["status"] != catalog.StatusDraft {
		t.Fatalf("expected default status draft, got %v", draft["status"])
	}
	data(t, h.CreateArticle(ctx, alice, catalog.CreateArticleArgs{Title: "Live", Content: "y", Status: catalog.StatusPublished}))

	feed := data(t, h.GetFeed(ctx, bob, catalog.GetFeedArgs{}))
	if feed["total"] != 1 {
		t.Fatalf("expected one published article in feed, got %v", feed["total"])
	}

	pub := data(t, h.PublishArticle(ctx, alice, catalog.PublishArticleArgs{ArticleID: draft["article_id"].(string)}))
	if pub["status"] != catalog.StatusPublished {
		t.Fatalf("expected published, got %v", pub["status"])
	}
	if out := h.PublishArticle(ctx, alice, catalog.PublishArticleArgs{ArticleID: draft["article_id"].(string)}); out.Success {
		t.Fatalf("expected second publish to fail")
	}
	if feed := data(t, h.GetFeed(ctx, bob, catalog.GetFeedArgs{Limit: 1})); feed["total"] != 2 || len(feed["articles"].([]map[string]any)) != 1 {
		t.Fatalf("unexpected paged feed: %v", feed)
	}

	data(t, h.UnfollowUser(ctx, bob, catalog.UnfollowUserArgs{Username: "alice"}))
	if feed := data(t, h.GetFeed(ctx, bob, catalog.GetFeedArgs{})); feed["total"] != 0 {
		t.Fatalf("expected empty feed after unfollow, got %v", feed["total"])
	}
}

func TestOwnershipChecks(t *testing.T) {
	ctx := context.Background()
	_, h := newDomain(t)
	a := data(t, h.CreateArticle(ctx, alice, catalog.CreateArticleArgs{Title: "Mine", Content: "x"}))
	id := a["article_id"].(string)

	if out := h.UpdateArticle(ctx, bob, catalog.UpdateArticleArgs{ArticleID: id, Title: "Hijack"}); out.Success {
		t.Fatalf("expected non-author update to fail")
	}
	if out := h.DeleteArticle(ctx, bob, catalog.DeleteArticleArgs{ArticleID: id}); out.Success {
		t.Fatalf("expected non-author delete to fail")
	}
	upd := data(t, h.UpdateArticle(ctx, alice, catalog.UpdateArticleArgs{ArticleID: id, Status: catalog.StatusPublished}))
	if upd["status"] != catalog.StatusPublished || upd["published_at"] == nil {
		t.Fatalf("unexpected update result: %v", upd)
	}
	data(t, h.DeleteArticle(ctx, alice, catalog.DeleteArticleArgs{ArticleID: id}))
	if out := h.LikeArticle(ctx, bob, catalog.LikeArticleArgs{ArticleID: id}); out.Success {
		t.Fatalf("expected like on deleted article to fail")
	}
}

func TestLikesCommentsAndNotifications(t *testing.T) {
	ctx := context.Background()
	_, h := newDomain(t)
	a := data(t, h.CreateArticle(ctx, alice, catalog.CreateArticleArgs{Title: "T", Content: "x", Status: catalog.StatusPublished}))
	id := a["article_id"].(string)

	like := data(t, h.LikeArticle(ctx, bob, catalog.LikeArticleArgs{ArticleID: id}))
	if like["author_id"] != alice.ID || like["likes"] != 1 {
		t.Fatalf("unexpected like result: %v", like)
	}
	if out := h.LikeArticle(ctx, bob, catalog.LikeArticleArgs{ArticleID: id}); out.Success {
		t.Fatalf("expected duplicate like to fail")
	}
	data(t, h.LikeArticle(ctx, alice, catalog.LikeArticleArgs{ArticleID: id}))
	c := data(t, h.CommentOnArticle(ctx, bob, catalog.CommentOnArticleArgs{ArticleID: id, Content: "nice"}))
	if c["author_id"] != alice.ID {
		t.Fatalf("expected comment result to name the article author: %v", c)
	}

	notes := data(t, h.GetNotifications(ctx, alice, catalog.GetNotificationsArgs{}))
	list := notes["notifications"].([]map[string]any)
	if len(list) != 2 || notes["unread"] != 2 {
		t.Fatalf("expected like and comment notifications, got %v", notes)
	}
	if list[0]["kind"] != "comment" {
		t.Fatalf("expected newest first, got %v", list[0]["kind"])
	}

	nid := list[0]["notification_id"].(string)
	data(t, h.MarkNotificationRead(ctx, alice, catalog.MarkNotificationReadArgs{NotificationID: nid}))
	unread := data(t, h.GetNotifications(ctx, alice, catalog.GetNotificationsArgs{UnreadOnly: true}))
	if len(unread["notifications"].([]map[string]any)) != 1 || unread["unread"] != 1 {
		t.Fatalf("unexpected unread view: %v", unread)
	}
	if out := h.MarkNotificationRead(ctx, bob, catalog.MarkNotificationReadArgs{NotificationID: nid}); out.Success {
		t.Fatalf("expected marking someone else's notification to fail")
	}
}

func TestSearchProfileAndSimilar(t *testing.T) {
	ctx := context.Background()
	_, h := newDomain(t)

	data(t, h.UpdateProfile(ctx, bob, catalog.UpdateProfileArgs{DisplayName: "Robert Tables"}))
	users := data(t, h.SearchUsers(ctx, alice, catalog.SearchUsersArgs{Query: "tables"}))["users"].([]map[string]any)
	if len(users) != 1 || users[0]["user_id"] != bob.ID {
		t.Fatalf("unexpected search hits: %v", users)
	}

	src := data(t, h.CreateArticle(ctx, alice, catalog.CreateArticleArgs{Title: "Go", Content: "x", Status: catalog.StatusPublished, Tags: []string{"go", "Concurrency"}}))
	data(t, h.CreateArticle(ctx, bob, catalog.CreateArticleArgs{Title: "Chan", Content: "x", Status: catalog.StatusPublished, Tags: []string{"concurrency", "go"}}))
	data(t, h.CreateArticle(ctx, bob, catalog.CreateArticleArgs{Title: "Rust", Content: "x", Status: catalog.StatusPublished, Tags: []string{"rust"}}))
	data(t, h.CreateArticle(ctx, bob, catalog.CreateArticleArgs{Title: "Draft", Content: "x", Tags: []string{"go"}}))

	similar := data(t, h.FindSimilarArticles(ctx, alice, catalog.FindSimilarArticlesArgs{ArticleID: src["article_id"].(string)}))["articles"].([]map[string]any)
	if len(similar) != 1 || similar[0]["title"] != "Chan" || similar[0]["shared_tags"] != 2 {
		t.Fatalf("unexpected similar articles: %v", similar)
	}
}

func TestAuthenticatorRecordsPrincipal(t *testing.T) {
	d := New(memgraph.New())
	carol := auth.Principal{ID: "u-carol", Username: "carol"}
	authn := d.Authenticator(auth.AuthenticatorFunc(func(context.Context, string) (auth.Principal, error) {
		return carol, nil
	}))
	if _, err := authn.CheckAuthentication(context.Background(), "tok"); err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
	out := d.Handlers().FollowUser(context.Background(), alice, catalog.FollowUserArgs{Username: "carol"})
	if !out.Success {
		t.Fatalf("expected recorded principal to be followable: %+v", out)
	}
}
