package routing

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/eventhouse/internal/ingester/model"
)

// DefaultTable maps every subject we know how to load to its destination.  Supporting a new event type means adding
// a line here (or an entry under `routes` in config).
var DefaultTable = map[string]model.Route{
	"events.login":                  {Table: "login_events", Schema: "dto.proto:LoginEvent"},
	"events.session":                {Table: "session_events", Schema: "dto.proto:SessionEvent"},
	"events.sabte_ahval":            {Table: "sabte_ahval_events", Schema: "dto.proto:SabteAhvalEvent"},
	"events.angulak.like":           {Table: "angulak_like_events", Schema: "dto.proto:AngulakLikeEvent"},
	"events.angulak.watch":          {Table: "angulak_watch_events", Schema: "dto.proto:AngulakWatchEvent"},
	"events.angulak.comment":        {Table: "angulak_comment_events", Schema: "dto.proto:AngulakCommentEvent"},
	"events.angulak.bookmark":       {Table: "angulak_bookmark_events", Schema: "dto.proto:AngulakBookmarkEvent"},
	"events.shahrefarang.item":      {Table: "shahrefarang_item_events", Schema: "dto.proto:ShahreFarangItemEvent"},
	"events.shahrefarang.play_info": {Table: "shahrefarang_play_info_events", Schema: "dto.proto:ShahreFarangPlayInfoEvent"},
}

// Router resolves subjects to routes.  It is immutable once built and safe for concurrent use.
type Router struct {
	routes map[string]model.Route
}

// NewRouter returns a Router over DefaultTable with extra layered on top; an entry in extra replaces the default
// route for the same subject.
func NewRouter(extra map[string]model.Route) *Router {
	routes := make(map[string]model.Route, len(DefaultTable)+len(extra))
	maps.Copy(routes, DefaultTable)
	maps.Copy(routes, extra)
	return &Router{routes: routes}
}

// Route returns the route for subject.  false means the subject is unroutable.
func (r *Router) Route(subject string) (model.Route, bool) {
	route, ok := r.routes[subject]
	return route, ok
}

// Subjects returns every routable subject in sorted order
func (r *Router) Subjects() []string {
	subjects := maps.Keys(r.routes)
	slices.Sort(subjects)
	return subjects
}
