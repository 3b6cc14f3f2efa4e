// Package devdomain is an in-memory social publishing backend for the tool
// catalog. It lets the server run standalone; nothing is persisted except
// the follow graph, which lives in whichever socialgraph.Store is supplied.
package devdomain

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/catalog"
	"github.com/ggoodman/toolwire/socialgraph"
	"github.com/ggoodman/toolwire/tools"
)

const (
	defaultFeedLimit    = 20
	defaultNotifLimit   = 20
	defaultSimilarLimit = 5
)

type user struct {
	id          string
	username    string
	displayName string
	bio         string
}

type article struct {
	id          string
	authorID    string
	title       string
	content     string
	status      string
	tags        []string
	createdAt   time.Time
	updatedAt   time.Time
	publishedAt time.Time
	likes       map[string]struct{}
	comments    []comment
}

type comment struct {
	id        string
	authorID  string
	content   string
	createdAt time.Time
}

type notification struct {
	id        string
	kind      string
	actorID   string
	articleID string
	read      bool
	createdAt time.Time
}

// Domain holds users, articles and notifications.
type Domain struct {
	graph socialgraph.Store
	now   func() time.Time

	mu            sync.Mutex
	users         map[string]*user
	byUsername    map[string]string
	articles      map[string]*article
	notifications map[string][]*notification
}

// New returns an empty Domain backed by graph.
func New(graph socialgraph.Store) *Domain {
	return &Domain{
		graph:         graph,
		now:           time.Now,
		users:         make(map[string]*user),
		byUsername:    make(map[string]string),
		articles:      make(map[string]*article),
		notifications: make(map[string][]*notification),
	}
}

// AddUser records p so other users can find it by username. Profile fields
// edited through update_profile are kept.
func (d *Domain) AddUser(p auth.Principal) {
	if p.ID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addUserLocked(p)
}

func (d *Domain) addUserLocked(p auth.Principal) *user {
	u, ok := d.users[p.ID]
	if !ok {
		u = &user{id: p.ID, displayName: p.DisplayName}
		d.users[p.ID] = u
	}
	username := p.Username
	if username == "" {
		username = p.ID
	}
	if u.username != username {
		delete(d.byUsername, strings.ToLower(u.username))
		u.username = username
		d.byUsername[strings.ToLower(username)] = p.ID
	}
	return u
}

// Authenticator wraps next so every authenticated principal is recorded.
func (d *Domain) Authenticator(next auth.Authenticator) auth.Authenticator {
	return auth.AuthenticatorFunc(func(ctx context.Context, tok string) (auth.Principal, error) {
		p, err := next.CheckAuthentication(ctx, tok)
		if err != nil {
			return p, err
		}
		d.AddUser(p)
		return p, nil
	})
}

// Handlers binds the domain to the tool catalog.
func (d *Domain) Handlers() catalog.Handlers {
	return catalog.Handlers{
		FollowUser:           d.followUser,
		UnfollowUser:         d.unfollowUser,
		CreateArticle:        d.createArticle,
		UpdateArticle:        d.updateArticle,
		PublishArticle:       d.publishArticle,
		DeleteArticle:        d.deleteArticle,
		LikeArticle:          d.likeArticle,
		CommentOnArticle:     d.commentOnArticle,
		GetFeed:              d.getFeed,
		GetNotifications:     d.getNotifications,
		MarkNotificationRead: d.markNotificationRead,
		SearchUsers:          d.searchUsers,
		UpdateProfile:        d.updateProfile,
		FindSimilarArticles:  d.findSimilarArticles,
	}
}

func (d *Domain) lookupUsername(name string) (*user, bool) {
	id, ok := d.byUsername[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return d.users[id], true
}

func (d *Domain) followUser(ctx context.Context, p auth.Principal, args catalog.FollowUserArgs) tools.Outcome {
	d.mu.Lock()
	d.addUserLocked(p)
	target, ok := d.lookupUsername(args.Username)
	d.mu.Unlock()
	if !ok {
		return tools.Fail("User not found: %s", args.Username)
	}
	if target.id == p.ID {
		return tools.Fail("You cannot follow yourself")
	}

	created, err := d.graph.Follow(ctx, p.ID, target.id)
	if err != nil {
		return tools.Internal(err)
	}
	if created {
		d.notify(target.id, "follow", p.ID, "")
	}
	return tools.OK(map[string]any{
		"user_id":   target.id,
		"username":  target.username,
		"following": true,
		"new":       created,
	})
}

func (d *Domain) unfollowUser(ctx context.Context, p auth.Principal, args catalog.UnfollowUserArgs) tools.Outcome {
	d.mu.Lock()
	target, ok := d.lookupUsername(args.Username)
	d.mu.Unlock()
	if !ok {
		return tools.Fail("User not found: %s", args.Username)
	}
	removed, err := d.graph.Unfollow(ctx, p.ID, target.id)
	if err != nil {
		return tools.Internal(err)
	}
	if !removed {
		return tools.Fail("You are not following %s", target.username)
	}
	return tools.OK(map[string]any{"user_id": target.id, "username": target.username, "following": false})
}

func (d *Domain) createArticle(_ context.Context, p auth.Principal, args catalog.CreateArticleArgs) tools.Outcome {
	status := args.Status
	if status == "" {
		status = catalog.StatusDraft
	}
	now := d.now()
	a := &article{
		id:        uuid.NewString(),
		authorID:  p.ID,
		title:     args.Title,
		content:   args.Content,
		status:    status,
		tags:      normalizeTags(args.Tags),
		createdAt: now,
		updatedAt: now,
		likes:     make(map[string]struct{}),
	}
	if status == catalog.StatusPublished {
		a.publishedAt = now
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.addUserLocked(p)
	d.articles[a.id] = a
	return tools.OK(d.articleView(a))
}

// ownArticle returns the article if p wrote it. d.mu must be held.
func (d *Domain) ownArticle(p auth.Principal, id string) (*article, tools.Outcome, bool) {
	a, ok := d.articles[id]
	if !ok {
		return nil, tools.Fail("Article not found: %s", id), false
	}
	if a.authorID != p.ID {
		return nil, tools.Fail("You can only modify your own articles"), false
	}
	return a, tools.Outcome{}, true
}

func (d *Domain) updateArticle(_ context.Context, p auth.Principal, args catalog.UpdateArticleArgs) tools.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, fail, ok := d.ownArticle(p, args.ArticleID)
	if !ok {
		return fail
	}
	if args.Title == "" && args.Content == "" && args.Status == "" {
		return tools.Fail("Nothing to update")
	}
	now := d.now()
	if args.Title != "" {
		a.title = args.Title
	}
	if args.Content != "" {
		a.content = args.Content
	}
	if args.Status != "" {
		if args.Status == catalog.StatusPublished && a.status != catalog.StatusPublished {
			a.publishedAt = now
		}
		a.status = args.Status
	}
	a.updatedAt = now
	return tools.OK(d.articleView(a))
}

func (d *Domain) publishArticle(_ context.Context, p auth.Principal, args catalog.PublishArticleArgs) tools.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, fail, ok := d.ownArticle(p, args.ArticleID)
	if !ok {
		return fail
	}
	if a.status == catalog.StatusPublished {
		return tools.Fail("Article is already published")
	}
	now := d.now()
	a.status = catalog.StatusPublished
	a.publishedAt = now
	a.updatedAt = now
	return tools.OK(d.articleView(a))
}

func (d *Domain) deleteArticle(_ context.Context, p auth.Principal, args catalog.DeleteArticleArgs) tools.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, fail, ok := d.ownArticle(p, args.ArticleID); !ok {
		return fail
	}
	delete(d.articles, args.ArticleID)
	return tools.OK(map[string]any{"article_id": args.ArticleID, "deleted": true})
}

func (d *Domain) likeArticle(_ context.Context, p auth.Principal, args catalog.LikeArticleArgs) tools.Outcome {
	d.mu.Lock()
	a, ok := d.articles[args.ArticleID]
	if !ok || a.status != catalog.StatusPublished {
		d.mu.Unlock()
		return tools.Fail("Article not found: %s", args.ArticleID)
	}
	if _, dup := a.likes[p.ID]; dup {
		d.mu.Unlock()
		return tools.Fail("You already liked this article")
	}
	a.likes[p.ID] = struct{}{}
	out := map[string]any{
		"article_id": a.id,
		"title":      a.title,
		"author_id":  a.authorID,
		"likes":      len(a.likes),
	}
	author := a.authorID
	d.mu.Unlock()

	if author != p.ID {
		d.notify(author, "like", p.ID, args.ArticleID)
	}
	return tools.OK(out)
}

func (d *Domain) commentOnArticle(_ context.Context, p auth.Principal, args catalog.CommentOnArticleArgs) tools.Outcome {
	d.mu.Lock()
	a, ok := d.articles[args.ArticleID]
	if !ok || a.status != catalog.StatusPublished {
		d.mu.Unlock()
		return tools.Fail("Article not found: %s", args.ArticleID)
	}
	c := comment{id: uuid.NewString(), authorID: p.ID, content: args.Content, createdAt: d.now()}
	a.comments = append(a.comments, c)
	out := map[string]any{
		"comment_id": c.id,
		"article_id": a.id,
		"title":      a.title,
		"author_id":  a.authorID,
		"content":    c.content,
		"created_at": c.createdAt.UTC().Format(time.RFC3339),
	}
	author := a.authorID
	d.mu.Unlock()

	if author != p.ID {
		d.notify(author, "comment", p.ID, args.ArticleID)
	}
	return tools.OK(out)
}

func (d *Domain) getFeed(ctx context.Context, p auth.Principal, args catalog.GetFeedArgs) tools.Outcome {
	following, err := d.graph.Following(ctx, p.ID)
	if err != nil {
		return tools.Internal(err)
	}
	authors := make(map[string]struct{}, len(following))
	for _, id := range following {
		authors[id] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var feed []*article
	for _, a := range d.articles {
		if _, ok := authors[a.authorID]; ok && a.status == catalog.StatusPublished {
			feed = append(feed, a)
		}
	}
	sort.Slice(feed, func(i, j int) bool {
		if !feed[i].publishedAt.Equal(feed[j].publishedAt) {
			return feed[i].publishedAt.After(feed[j].publishedAt)
		}
		return feed[i].id < feed[j].id
	})

	limit := args.Limit
	if limit == 0 {
		limit = defaultFeedLimit
	}
	views := make([]map[string]any, 0, limit)
	for _, a := range page(feed, args.Offset, limit) {
		views = append(views, d.articleView(a))
	}
	return tools.OK(map[string]any{"articles": views, "total": len(feed)})
}

func (d *Domain) getNotifications(_ context.Context, p auth.Principal, args catalog.GetNotificationsArgs) tools.Outcome {
	limit := args.Limit
	if limit == 0 {
		limit = defaultNotifLimit
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	all := d.notifications[p.ID]
	out := make([]map[string]any, 0, limit)
	unread := 0
	// Newest first.
	for i := len(all) - 1; i >= 0; i-- {
		n := all[i]
		if !n.read {
			unread++
		}
		if args.UnreadOnly && n.read {
			continue
		}
		if len(out) < limit {
			out = append(out, d.notificationView(n))
		}
	}
	return tools.OK(map[string]any{"notifications": out, "unread": unread})
}

func (d *Domain) markNotificationRead(_ context.Context, p auth.Principal, args catalog.MarkNotificationReadArgs) tools.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.notifications[p.ID] {
		if n.id == args.NotificationID {
			n.read = true
			return tools.OK(map[string]any{"notification_id": n.id, "read": true})
		}
	}
	return tools.Fail("Notification not found: %s", args.NotificationID)
}

func (d *Domain) searchUsers(_ context.Context, _ auth.Principal, args catalog.SearchUsersArgs) tools.Outcome {
	q := strings.ToLower(strings.TrimSpace(args.Query))
	d.mu.Lock()
	defer d.mu.Unlock()
	var hits []*user
	for _, u := range d.users {
		if strings.Contains(strings.ToLower(u.username), q) || strings.Contains(strings.ToLower(u.displayName), q) {
			hits = append(hits, u)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].username < hits[j].username })
	out := make([]map[string]any, 0, len(hits))
	for _, u := range hits {
		out = append(out, userView(u))
	}
	return tools.OK(map[string]any{"users": out})
}

func (d *Domain) updateProfile(_ context.Context, p auth.Principal, args catalog.UpdateProfileArgs) tools.Outcome {
	if args.DisplayName == "" && args.Bio == "" {
		return tools.Fail("Nothing to update")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.addUserLocked(p)
	if args.DisplayName != "" {
		u.displayName = args.DisplayName
	}
	if args.Bio != "" {
		u.bio = args.Bio
	}
	return tools.OK(userView(u))
}

// findSimilarArticles ranks other published articles by the number of
// shared tags.
func (d *Domain) findSimilarArticles(_ context.Context, _ auth.Principal, args catalog.FindSimilarArticlesArgs) tools.Outcome {
	limit := args.Limit
	if limit == 0 {
		limit = defaultSimilarLimit
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.articles[args.ArticleID]
	if !ok {
		return tools.Fail("Article not found: %s", args.ArticleID)
	}
	type scored struct {
		a     *article
		score int
	}
	var ranked []scored
	for _, a := range d.articles {
		if a.id == src.id || a.status != catalog.StatusPublished {
			continue
		}
		if s := sharedTags(src.tags, a.tags); s > 0 {
			ranked = append(ranked, scored{a, s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].a.id < ranked[j].a.id
	})
	out := make([]map[string]any, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		v := d.articleView(r.a)
		v["shared_tags"] = r.score
		out = append(out, v)
	}
	return tools.OK(map[string]any{"articles": out})
}

func (d *Domain) notify(userID, kind, actorID, articleID string) {
	n := &notification{
		id:        uuid.NewString(),
		kind:      kind,
		actorID:   actorID,
		articleID: articleID,
		createdAt: d.now(),
	}
	d.mu.Lock()
	d.notifications[userID] = append(d.notifications[userID], n)
	d.mu.Unlock()
}

// articleView renders a. d.mu must be held.
func (d *Domain) articleView(a *article) map[string]any {
	v := map[string]any{
		"article_id": a.id,
		"author_id":  a.authorID,
		"title":      a.title,
		"content":    a.content,
		"status":     a.status,
		"tags":       append([]string{}, a.tags...),
		"likes":      len(a.likes),
		"comments":   len(a.comments),
		"created_at": a.createdAt.UTC().Format(time.RFC3339),
		"updated_at": a.updatedAt.UTC().Format(time.RFC3339),
	}
	if !a.publishedAt.IsZero() {
		v["published_at"] = a.publishedAt.UTC().Format(time.RFC3339)
	}
	if u, ok := d.users[a.authorID]; ok {
		v["author_username"] = u.username
	}
	return v
}

func (d *Domain) notificationView(n *notification) map[string]any {
	v := map[string]any{
		"notification_id": n.id,
		"kind":            n.kind,
		"actor_id":        n.actorID,
		"read":            n.read,
		"created_at":      n.createdAt.UTC().Format(time.RFC3339),
	}
	if n.articleID != "" {
		v["article_id"] = n.articleID
	}
	return v
}

func userView(u *user) map[string]any {
	return map[string]any{
		"user_id":      u.id,
		"username":     u.username,
		"display_name": u.displayName,
		"bio":          u.bio,
	}
}

func normalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sharedTags(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if x == y {
				n++
				break
			}
		}
	}
	return n
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
