package client

import (
	"maps"
	"strings"
)

// Route names of the HR application
const (
	RouteLogin            = "login"
	RouteDashboard        = "dashboard"
	RouteCollaborators    = "collaborators"
	RouteAddCollaborator  = "add collaborator"
	RouteEditCollaborator = "edit collaborator"
	RouteSettings         = "settings"
	RouteProfile          = "profile"
	RouteArchive          = "archive"
)

// PermissionViewCollaborators is required by every dashboard route except
// settings and the user's own profile
const PermissionViewCollaborators = "view collaborators"

type Route struct {
	Name string
	Path string
	// Public routes are reachable without a token
	Public bool
	// Permission the loaded profile must carry, empty for none
	Permission string
	// OwnerParam names the path param that, when equal to the user id,
	// grants access without Permission
	OwnerParam string
}

type RouteTable map[string]Route

// DefaultRoutes mirrors the HR dashboard
func DefaultRoutes() RouteTable {
	routes := []Route{
		{Name: RouteLogin, Path: "/login", Public: true},
		{Name: RouteDashboard, Path: "/dashboard", Permission: PermissionViewCollaborators},
		{Name: RouteCollaborators, Path: "/dashboard/collaborators", Permission: PermissionViewCollaborators},
		{Name: RouteAddCollaborator, Path: "/dashboard/collaborators/create", Permission: PermissionViewCollaborators},
		{Name: RouteEditCollaborator, Path: "/dashboard/collaborators/:id/edit", Permission: PermissionViewCollaborators},
		{Name: RouteSettings, Path: "/dashboard/settings"},
		{Name: RouteProfile, Path: "/dashboard/collaborators/:id/profile", Permission: PermissionViewCollaborators, OwnerParam: "id"},
		{Name: RouteArchive, Path: "/dashboard/collaborators/archive", Permission: PermissionViewCollaborators},
	}

	table := RouteTable{}
	for _, r := range routes {
		table[r.Name] = r
	}
	return table
}

// Lookup finds the route whose path matches, filling its params
func (t RouteTable) Lookup(path string) (Location, bool) {
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return Location{Name: RouteDashboard}, true
	}

	for _, r := range t {
		if params, ok := matchPath(r.Path, path); ok {
			return Location{Name: r.Name, Params: params}, true
		}
	}
	return Location{}, false
}

// Path renders the route path for loc
func (t RouteTable) Path(loc Location) (string, bool) {
	r, ok := t[loc.Name]
	if !ok {
		return "", false
	}

	parts := strings.Split(r.Path, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = loc.Params[part[1:]]
		}
	}
	return strings.Join(parts, "/"), true
}

// Location is a navigation target
type Location struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

func (l Location) Param(name string) string {
	if l.Params == nil {
		return ""
	}
	return l.Params[name]
}

type Decision struct {
	Allow    bool
	Redirect *Location
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(name string, params map[string]string) Decision {
	return Decision{Redirect: &Location{Name: name, Params: maps.Clone(params)}}
}

// Guard decides whether the session may enter to. It has no side effects.
func Guard(session SessionView, to Location, table RouteTable) Decision {
	route, known := table[to.Name]
	authenticated := session.IsAuthenticated()

	if !authenticated && !(known && route.Public) && to.Name != RouteLogin {
		return redirect(RouteLogin, nil)
	}

	if to.Name == RouteLogin && authenticated {
		return redirect(RouteDashboard, nil)
	}

	user := session.User()
	if user == nil || !known || route.Permission == "" {
		// a token without a loaded profile is let through
		return allow()
	}

	if user.Can(route.Permission) {
		return allow()
	}

	if route.OwnerParam != "" && to.Param(route.OwnerParam) == user.ID {
		return allow()
	}

	return redirect(RouteProfile, map[string]string{"id": user.ID})
}

func matchPath(pattern, path string) (map[string]string, bool) {
	pp := strings.Split(strings.Trim(pattern, "/"), "/")
	sp := strings.Split(strings.Trim(path, "/"), "/")
	if len(pp) != len(sp) {
		return nil, false
	}

	var params map[string]string
	for i := range pp {
		if strings.HasPrefix(pp[i], ":") {
			if sp[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[pp[i][1:]] = sp[i]
			continue
		}
		if pp[i] != sp[i] {
			return nil, false
		}
	}
	return params, true
}
