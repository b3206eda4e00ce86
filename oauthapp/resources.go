package oauthapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
)

// AccountType discriminates Account variants.
type AccountType string

const (
	UserAccount  AccountType = oauthmodel.OwnerTypeUser
	GroupAccount AccountType = oauthmodel.OwnerTypeGroup
)

// Account is a user or group the user granted access to. The concrete type
// is *User or *Group.
type Account interface {
	AccountID() string
	AccountType() AccountType
	Do(req *http.Request) (*http.Response, error)
	isAccount()
}

// binding ties a resource handle to the token it was resolved with. Handles
// never switch tokens.
type binding struct {
	token *PartialToken
}

// Do sends req authorized with the handle's token.
func (b binding) Do(req *http.Request) (*http.Response, error) {
	if err := b.token.usable("resource call"); err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token.Value)
	return b.token.app.httpClient.Do(req)
}

// HTTPClient returns a client authorized with the handle's token.
func (b binding) HTTPClient(ctx context.Context) *http.Client {
	return b.token.HTTPClient(ctx)
}

// BoundTo reports whether the handle was resolved with t.
func (b binding) BoundTo(t *PartialToken) bool {
	return b.token == t
}

type User struct {
	ID string
	binding
}

func (u *User) AccountID() string        { return u.ID }
func (u *User) AccountType() AccountType { return UserAccount }
func (u *User) isAccount()               {}
func (u *User) String() string           { return "User(" + u.ID + ")" }

type Group struct {
	ID string
	binding
}

func (g *Group) AccountID() string        { return g.ID }
func (g *Group) AccountType() AccountType { return GroupAccount }
func (g *Group) isAccount()               {}
func (g *Group) String() string           { return "Group(" + g.ID + ")" }

// Experience is a granted experience (universe) and its owning account.
type Experience struct {
	ID    string
	Owner Account
	binding
}

func (e *Experience) String() string {
	return fmt.Sprintf("Experience(%s owner=%v)", e.ID, e.Owner)
}

// Resources are the accounts and experiences a user granted.
type Resources struct {
	Experiences []*Experience
	Accounts    []Account
}

// Empty reports whether nothing was granted.
func (r *Resources) Empty() bool {
	return len(r.Experiences) == 0 && len(r.Accounts) == 0
}

// Resources fetches what the user actually granted to this token. The
// returned handles are bound to t.
func (t *PartialToken) Resources(ctx context.Context) (*Resources, error) {
	const op = "resources"

	if err := t.usable(op); err != nil {
		return nil, err
	}

	form := t.app.clientForm()
	form.Set("token", t.Value)

	var payload oauthmodel.ResourcesResponse
	if err := t.app.postForm(ctx, op, t.app.endpoints.ResourcesURL, form, bearerFailure, &payload); err != nil {
		return nil, err
	}

	resources, err := decodeResources(payload, t)
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Op: op, Err: err}
	}

	if resources.Empty() && t.app.resourcePolicy == ResourcesRequireGrant {
		return nil, &Error{Kind: ErrNoResourcesGranted, Op: op}
	}
	return resources, nil
}

func decodeResources(payload oauthmodel.ResourcesResponse, t *PartialToken) (*Resources, error) {
	b := binding{token: t}
	resources := &Resources{
		Experiences: []*Experience{},
		Accounts:    []Account{},
	}

	for _, info := range payload.ResourceInfos {
		owner, err := decodeOwner(info.Owner, b)
		if err != nil {
			return nil, err
		}

		if info.Resources.Universe != nil {
			for _, id := range info.Resources.Universe.IDs {
				if id == "" {
					return nil, fmt.Errorf("empty universe id")
				}
				resources.Experiences = append(resources.Experiences, &Experience{ID: id, Owner: owner, binding: b})
			}
		}

		if info.Resources.Creator != nil {
			for _, id := range info.Resources.Creator.IDs {
				account, err := decodeCreator(id, owner, b)
				if err != nil {
					return nil, err
				}
				resources.Accounts = append(resources.Accounts, account)
			}
		}
	}
	return resources, nil
}

func decodeOwner(owner oauthmodel.ResourceOwner, b binding) (Account, error) {
	if owner.ID == "" {
		return nil, fmt.Errorf("resource owner has no id")
	}
	switch owner.Type {
	case oauthmodel.OwnerTypeUser:
		return &User{ID: owner.ID, binding: b}, nil
	case oauthmodel.OwnerTypeGroup:
		return &Group{ID: owner.ID, binding: b}, nil
	}
	return nil, fmt.Errorf("unrecognized account type %q", owner.Type)
}

func decodeCreator(id string, owner Account, b binding) (Account, error) {
	switch {
	case id == oauthmodel.CreatorOwnerUser:
		if owner.AccountType() != UserAccount {
			return nil, fmt.Errorf("creator %q refers to the owner, but the owner is a %s", id, owner.AccountType())
		}
		return &User{ID: owner.AccountID(), binding: b}, nil
	case len(id) > 1 && strings.HasPrefix(id, oauthmodel.CreatorUserPrefix):
		return &User{ID: id[1:], binding: b}, nil
	case len(id) > 1 && strings.HasPrefix(id, oauthmodel.CreatorGroupPrefix):
		return &Group{ID: id[1:], binding: b}, nil
	}
	return nil, fmt.Errorf("unrecognized creator id %q", id)
}
