package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/validator"
)

// ProfilesTable is the collection holding institutional profiles.
const ProfilesTable = "profiles"

// Filter is an equality condition on a named column.
type Filter struct {
	Column string
	Value  interface{}
}

// Eq builds an equality filter.
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Value: value}
}

func (f Filter) literal() string {
	switch v := f.Value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// RestClient is the record query surface.
type RestClient struct {
	client *Client
	auth   *AuthClient
}

// NewRestClient creates a RestClient. When auth is non-nil, queries run with
// the signed-in user's token so row-level policies apply.
func NewRestClient(client *Client, auth *AuthClient) *RestClient {
	return &RestClient{client: client, auth: auth}
}

// Select decodes every row of table matching all filters into dst (a slice pointer).
func (r *RestClient) Select(ctx context.Context, table string, dst interface{}, filters ...Filter) error {
	q := url.Values{}
	q.Set("select", "*")
	for _, f := range filters {
		q.Add(f.Column, "eq."+f.literal())
	}

	bearer := ""
	if r.auth != nil {
		if s := r.auth.CurrentSession(); s != nil {
			bearer = s.AccessToken
		}
	}
	return r.client.do(ctx, http.MethodGet, "/rest/v1/"+url.PathEscape(table)+"?"+q.Encode(), nil, dst, bearer)
}

// SelectSingle decodes exactly one matching row into dst.
func (r *RestClient) SelectSingle(ctx context.Context, table string, dst interface{}, filters ...Filter) error {
	var rows []json.RawMessage
	if err := r.Select(ctx, table, &rows, filters...); err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("%s: %w (got %d)", table, ErrNotSingle, len(rows))
	}
	if err := json.Unmarshal(rows[0], dst); err != nil {
		return fmt.Errorf("decode %s row: %w", table, err)
	}
	return nil
}

// ProfileTable finds profiles through the record API.
type ProfileTable struct {
	rest *RestClient
}

// NewProfileTable creates a ProfileTable.
func NewProfileTable(rest *RestClient) *ProfileTable {
	return &ProfileTable{rest: rest}
}

// FindOne returns the single profile matching all filters.
func (t *ProfileTable) FindOne(ctx context.Context, filters ...Filter) (*model.Profile, error) {
	var p model.Profile
	if err := t.rest.SelectSingle(ctx, ProfilesTable, &p, filters...); err != nil {
		return nil, err
	}
	if err := validator.Struct(&p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	return &p, nil
}
