// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultPaginationCount = 100
	MaxPaginationCount     = 100
	DefaultPaginationPage  = 1
	PaginationOrderAsc     = "asc"
	PaginationOrderDesc    = "desc"
)

var ErrInvalidPaginationParameters = errors.New(
	"invalid pagination parameters",
)

// PaginationParams contains parsed pagination query values
type PaginationParams struct {
	Order string
	Count int
	Page  int
}

// ParsePagination parses the count, page and order query parameters,
// applying defaults and clamping
func ParsePagination(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{
		Count: DefaultPaginationCount,
		Page:  DefaultPaginationPage,
		Order: PaginationOrderAsc,
	}
	query := r.URL.Query()
	if countParam := query.Get("count"); countParam != "" {
		count, err := strconv.Atoi(countParam)
		if err != nil {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
		params.Count = count
	}
	if pageParam := query.Get("page"); pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		if err != nil {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
		params.Page = page
	}
	if orderParam := query.Get("order"); orderParam != "" {
		order := strings.ToLower(orderParam)
		switch order {
		case PaginationOrderAsc, PaginationOrderDesc:
			params.Order = order
		default:
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
	}
	params.Count = min(max(params.Count, 1), MaxPaginationCount)
	params.Page = max(params.Page, 1)
	return params, nil
}

// Paginate returns the page of items selected by params
func Paginate[T any](items []T, params PaginationParams) []T {
	if params.Order == PaginationOrderDesc {
		rev := make([]T, len(items))
		for i, item := range items {
			rev[len(items)-1-i] = item
		}
		items = rev
	}
	start := (params.Page - 1) * params.Count
	if start >= len(items) {
		return []T{}
	}
	end := min(start+params.Count, len(items))
	return items[start:end]
}

// SetPaginationHeaders sets the total item and page count headers
func SetPaginationHeaders(w http.ResponseWriter, totalItems int, params PaginationParams) {
	totalItems = max(totalItems, 0)
	if params.Count < 1 {
		params.Count = DefaultPaginationCount
	}
	totalPages := 0
	if totalItems > 0 {
		totalPages = (totalItems + params.Count - 1) / params.Count
	}
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(totalItems))
	w.Header().Set("X-Pagination-Page-Total", strconv.Itoa(totalPages))
}
