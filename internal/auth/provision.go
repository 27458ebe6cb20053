package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"authcore.org/internal/permission"
)

// Catalog declares the system groups and the resources with the actions
// they support.
type Catalog struct {
	Groups    []GroupSpec    `json:"groups"`
	Resources []ResourceSpec `json:"resources"`
}

// GroupSpec declares a system group. Grants maps resources to action
// names; the admin-alias group always receives the whole catalog.
type GroupSpec struct {
	Name   string              `json:"name"`
	Alias  string              `json:"alias,omitempty"`
	Grants map[string][]string `json:"grants,omitempty"`
}

// ResourceSpec declares a resource. AvailableActions is either a bitmask
// (number or numeric string) or a list of action names.
type ResourceSpec struct {
	Name             string          `json:"name"`
	AvailableActions json.RawMessage `json:"available_actions"`
}

// Actions decodes AvailableActions.
func (r ResourceSpec) Actions() ([]permission.Action, error) {
	raw := bytes.TrimSpace(r.AvailableActions)
	if len(raw) == 0 {
		return nil, fmt.Errorf("resource %s: available_actions is required", r.Name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("resource %s: %w", r.Name, err)
	}
	switch t := v.(type) {
	case float64:
		return permission.Decode(int(t)), nil
	case string:
		return permission.DecodeString(t), nil
	default:
		mask, err := permission.EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.Name, err)
		}
		return permission.Decode(mask), nil
	}
}

func mask(n int) json.RawMessage { return json.RawMessage(fmt.Sprint(n)) }

// DefaultCatalog is the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Groups: []GroupSpec{
			{Name: "User", Alias: AliasUser},
			{Name: "Users Manager", Grants: map[string][]string{
				ResourceUser:      {"read", "update"},
				ResourceUserGroup: {"read", "update"},
				ResourceGroup:     {"read"},
			}},
			{Name: "Administrator", Alias: AliasAdmin},
		},
		Resources: []ResourceSpec{
			{Name: ResourceUser, AvailableActions: mask(13)},
			{Name: ResourceUserActivity, AvailableActions: mask(9)},
			{Name: ResourceUserPermission, AvailableActions: mask(1)},
			{Name: ResourceUserGroup, AvailableActions: mask(5)},
			{Name: ResourceGroup, AvailableActions: mask(15)},
			{Name: ResourceGroupPermission, AvailableActions: mask(5)},
			{Name: ResourcePermission, AvailableActions: mask(1)},
		},
	}
}

// LoadCatalog reads a JSON catalog.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return c, nil
}

// Provision creates the catalog's resources, permissions and system groups
// and sets the system groups' grants. It is idempotent.
func Provision(ctx context.Context, store Store, c Catalog) error {
	return store.InTx(ctx, func(st Store) error {
		byPair := map[permission.Pair]Permission{}
		var all []Permission
		for _, rs := range c.Resources {
			name := strings.TrimSpace(rs.Name)
			if name == "" {
				return errors.New("catalog: resource without name")
			}
			actions, err := rs.Actions()
			if err != nil {
				return err
			}
			res, err := st.Permissions().EnsureResource(ctx, name)
			if err != nil {
				return fmt.Errorf("ensure resource %s: %w", name, err)
			}
			for _, a := range actions {
				p, err := st.Permissions().Ensure(ctx, res.ID, a)
				if err != nil {
					return fmt.Errorf("ensure permission %s:%s: %w", name, a, err)
				}
				p.Resource = name
				byPair[p.Pair()] = p
				all = append(all, p)
			}
		}

		for _, gs := range c.Groups {
			g, err := ensureSystemGroup(ctx, st, gs)
			if err != nil {
				return err
			}
			grants := all
			if g.Alias != AliasAdmin {
				grants = nil
				for _, resource := range sortedKeys(gs.Grants) {
					for _, name := range gs.Grants[resource] {
						action, _ := permission.ParseAction(name)
						p, ok := byPair[permission.P(resource, action)]
						if !ok {
							return fmt.Errorf("catalog: group %s grants unknown permission %s:%s", gs.Name, resource, name)
						}
						grants = append(grants, p)
					}
				}
			}
			if err := st.Groups().SetPermissions(ctx, g.ID, grants); err != nil {
				return fmt.Errorf("grant %s: %w", gs.Name, err)
			}
		}
		return nil
	})
}

func ensureSystemGroup(ctx context.Context, st Store, gs GroupSpec) (Group, error) {
	name := strings.TrimSpace(gs.Name)
	if name == "" {
		return Group{}, errors.New("catalog: group without name")
	}
	if gs.Alias != "" {
		g, err := st.Groups().FindByAlias(ctx, gs.Alias)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Group{}, err
		}
	}
	g, err := st.Groups().FindByName(ctx, name)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Group{}, err
	}
	return st.Groups().Create(ctx, Group{Name: name, System: true, Alias: gs.Alias})
}

// EnsureAdmin creates a protected member of the admin-alias group unless
// an account with the same email exists. The existing or created user is
// returned.
func (s *Service) EnsureAdmin(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if !ValidEmail(in.Email) {
		return User{}, newError(KindBadRequest, "invalid email address")
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		return User{}, err
	}
	if in.Name == "" {
		in.Name = "Administrator"
	}
	var out User
	err := s.store.InTx(ctx, func(st Store) error {
		existing, err := st.Users().FindByEmail(ctx, in.Email)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		base, err := st.Groups().FindByAlias(ctx, AliasUser)
		if err != nil {
			return err
		}
		admin, err := st.Groups().FindByAlias(ctx, AliasAdmin)
		if err != nil {
			return err
		}
		hash, err := HashPassword(in.Password)
		if err != nil {
			return err
		}
		out, err = st.Users().Create(ctx, User{
			Email:        in.Email,
			Name:         in.Name,
			Firstname:    in.Firstname,
			PasswordHash: hash,
			SecretKey:    s.newSecret(),
			Protected:    true,
		})
		if err != nil {
			return err
		}
		return st.Users().SetGroups(ctx, out.ID, []int64{base.ID, admin.ID})
	})
	return out, err
}
