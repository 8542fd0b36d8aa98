package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"

	"github.com/example/stagelink/internal/common"
	"github.com/example/stagelink/internal/models"
	"github.com/example/stagelink/internal/session"
	"github.com/example/stagelink/internal/token"
)

const schemaString = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	currentUser: User
}

type Mutation {
	signUp(phone: String!, username: String!, fullName: String!): User!
	signInWithPhone(phone: String!, otp: String!): AuthPayload!
	refreshToken(refreshToken: String!): RefreshPayload!
	logout: Boolean!
	updateDeviceToken(deviceToken: String!): Boolean!
}

type User {
	id: ID!
	phone: String!
	username: String!
	fullName: String!
	status: String!
	bio: String!
	budget: Float!
	artistRating: Float!
	hostRating: Float!
	instagram: String!
	twitter: String!
	isArtist: Boolean!
	location: Location
	categories: [Category!]!
	subcategories: [Subcategory!]!
}

type Location {
	id: ID!
	address: String!
	city: String!
	latitude: Float!
	longitude: Float!
}

type Category {
	id: ID!
	name: String!
}

type Subcategory {
	id: ID!
	name: String!
}

type AuthPayload {
	accessToken: String!
	refreshToken: String!
	user: User!
}

type RefreshPayload {
	accessToken: String!
	user: User!
}
`

// Resolver is the GraphQL root. All operations delegate to the session
// manager; field resolution uses the view structs below.
type Resolver struct {
	mgr *session.Manager
}

// CurrentUser returns the authenticated user's profile.
func (r *Resolver) CurrentUser(ctx context.Context) (*UserView, error) {
	claims, ok := claimsFrom(ctx)
	if !ok {
		return nil, gqlError(common.ErrUnauthorized)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, gqlError(common.ErrUnauthorized)
	}
	profile, err := r.mgr.GetProfile(ctx, id)
	if err != nil {
		return nil, gqlError(err)
	}
	return newUserView(profile), nil
}

// SignUp starts phone verification and creates the pending account.
func (r *Resolver) SignUp(ctx context.Context, args struct {
	Phone    string
	Username string
	FullName string
}) (*UserView, error) {
	user, err := r.mgr.SignUp(ctx, args.Phone, args.Username, args.FullName)
	if err != nil {
		return nil, gqlError(err)
	}
	return newUserView(user), nil
}

// SignInWithPhone exchanges a live OTP for a token pair.
func (r *Resolver) SignInWithPhone(ctx context.Context, args struct {
	Phone string
	Otp   string
}) (*AuthPayloadView, error) {
	result, err := r.mgr.SignIn(ctx, args.Phone, args.Otp)
	if err != nil {
		return nil, gqlError(err)
	}
	return &AuthPayloadView{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         newUserView(result.User),
	}, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (r *Resolver) RefreshToken(ctx context.Context, args struct {
	RefreshToken string
}) (*RefreshPayloadView, error) {
	result, err := r.mgr.Refresh(ctx, args.RefreshToken)
	if err != nil {
		return nil, gqlError(err)
	}
	return &RefreshPayloadView{
		AccessToken: result.AccessToken,
		User:        newUserView(result.User),
	}, nil
}

// Logout tears down the caller's session. Anonymous callers get true back;
// logout is idempotent.
func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	claims, ok := claimsFrom(ctx)
	if !ok {
		return true, nil
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return true, nil
	}
	if err := r.mgr.Logout(ctx, id, rawTokenFrom(ctx)); err != nil {
		return false, gqlError(err)
	}
	return true, nil
}

// UpdateDeviceToken stores the caller's push device token.
func (r *Resolver) UpdateDeviceToken(ctx context.Context, args struct {
	DeviceToken string
}) (bool, error) {
	claims, ok := claimsFrom(ctx)
	if !ok {
		return false, gqlError(common.ErrUnauthorized)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return false, gqlError(common.ErrUnauthorized)
	}
	if err := r.mgr.UpdateDeviceToken(ctx, id, args.DeviceToken); err != nil {
		return false, gqlError(err)
	}
	return true, nil
}

// Views exposed through the schema.

type UserView struct {
	ID            graphql.ID
	Phone         string
	Username      string
	FullName      string
	Status        string
	Bio           string
	Budget        float64
	ArtistRating  float64
	HostRating    float64
	Instagram     string
	Twitter       string
	IsArtist      bool
	Location      *LocationView
	Categories    []*CategoryView
	Subcategories []*SubcategoryView
}

type LocationView struct {
	ID        graphql.ID
	Address   string
	City      string
	Latitude  float64
	Longitude float64
}

type CategoryView struct {
	ID   graphql.ID
	Name string
}

type SubcategoryView struct {
	ID   graphql.ID
	Name string
}

type AuthPayloadView struct {
	AccessToken  string
	RefreshToken string
	User         *UserView
}

type RefreshPayloadView struct {
	AccessToken string
	User        *UserView
}

func newUserView(u *models.User) *UserView {
	view := &UserView{
		ID:            graphql.ID(u.ID.String()),
		Phone:         u.Phone,
		Username:      u.Username,
		FullName:      u.FullName,
		Status:        u.Status,
		Bio:           u.Bio,
		Budget:        u.Budget,
		ArtistRating:  u.ArtistRating,
		HostRating:    u.HostRating,
		Instagram:     u.Instagram,
		Twitter:       u.Twitter,
		IsArtist:      u.IsArtist,
		Categories:    make([]*CategoryView, 0, len(u.Categories)),
		Subcategories: make([]*SubcategoryView, 0, len(u.Subcategories)),
	}
	if u.Location != nil {
		view.Location = &LocationView{
			ID:        graphql.ID(u.Location.ID.String()),
			Address:   u.Location.Address,
			City:      u.Location.City,
			Latitude:  u.Location.Latitude,
			Longitude: u.Location.Longitude,
		}
	}
	for _, c := range u.Categories {
		view.Categories = append(view.Categories, &CategoryView{ID: graphql.ID(c.ID.String()), Name: c.Name})
	}
	for _, s := range u.Subcategories {
		view.Subcategories = append(view.Subcategories, &SubcategoryView{ID: graphql.ID(s.ID.String()), Name: s.Name})
	}
	return view
}

// resolverError carries a stable machine-checkable code in the GraphQL
// error extensions.
type resolverError struct {
	code string
	err  error
}

func (e *resolverError) Error() string { return e.err.Error() }
func (e *resolverError) Unwrap() error { return e.err }
func (e *resolverError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

func gqlError(err error) error {
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrTokenRevoked):
		return &resolverError{code: "UNAUTHORIZED", err: err}
	case errors.Is(err, common.ErrInvalidOtp):
		return &resolverError{code: "INVALID_OTP", err: err}
	case errors.Is(err, common.ErrUserNotFound):
		return &resolverError{code: "USER_NOT_FOUND", err: err}
	case errors.Is(err, common.ErrDuplicatePhone):
		return &resolverError{code: "DUPLICATE_PHONE", err: err}
	case errors.Is(err, common.ErrInvalidRefreshToken):
		return &resolverError{code: "INVALID_REFRESH_TOKEN", err: err}
	case errors.Is(err, common.ErrSessionExpired):
		return &resolverError{code: "SESSION_EXPIRED", err: err}
	case errors.Is(err, token.ErrExpiredToken), errors.Is(err, token.ErrInvalidToken):
		return &resolverError{code: "UNAUTHORIZED", err: err}
	default:
		return &resolverError{code: "INTERNAL", err: err}
	}
}
