package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// Values encodes q the way the table API expects:
// select=a,b&col=eq.value&order=col.asc
func (q Query) Values() url.Values {
	values := url.Values{}
	if len(q.Columns) > 0 {
		values.Set("select", strings.Join(q.Columns, ","))
	}
	for _, f := range q.Filters {
		values.Add(f.Column, "eq."+f.Value)
	}
	if q.Order != nil && q.Order.Column != "" {
		direction := "desc"
		if q.Order.Ascending {
			direction = "asc"
		}
		values.Set("order", q.Order.Column+"."+direction)
	}
	return values
}

// Select decodes the matching rows into dest, which must point to a slice.
func (c *Client) Select(ctx context.Context, q Query, dest any) error {
	if q.Table == "" {
		return fmt.Errorf("select: table is required")
	}
	return c.doRequest(ctx, http.MethodGet, tablePath(q.Table), requestOptions{query: q.Values()}, nil, dest)
}

// Upsert inserts row or updates it by primary key. When dest is non-nil the
// stored rows are decoded into it.
func (c *Client) Upsert(ctx context.Context, table string, row any, dest any) error {
	if table == "" {
		return fmt.Errorf("upsert: table is required")
	}
	opts := requestOptions{prefer: "resolution=merge-duplicates,return=representation"}
	return c.doRequest(ctx, http.MethodPost, tablePath(table), opts, row, dest)
}

func (c *Client) Delete(ctx context.Context, table string, filters ...Filter) error {
	if table == "" {
		return fmt.Errorf("delete: table is required")
	}
	if len(filters) == 0 {
		return fmt.Errorf("delete %s: at least one filter is required", table)
	}
	q := Query{Table: table, Filters: filters}
	return c.doRequest(ctx, http.MethodDelete, tablePath(table), requestOptions{query: q.Values()}, nil, nil)
}
