package api

import (
	"fmt"
	"strconv"
)

const defaultItemsPerPage = 100

func parsePaginationParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, err
	}

	return int(v), nil
}

// paginate keeps the requested page of items and returns the page count.
func paginate[T any](items *[]T, itemsPerPageStr string, pageStr string) (int, error) {
	itemsPerPage, err := parsePaginationParam(itemsPerPageStr, defaultItemsPerPage)
	if err != nil {
		return 0, err
	}
	if itemsPerPage == 0 {
		return 0, fmt.Errorf("invalid items per page")
	}

	page, err := parsePaginationParam(pageStr, 0)
	if err != nil {
		return 0, err
	}

	n := len(*items)
	if n == 0 {
		return 0, nil
	}

	start := min(page*itemsPerPage, n)
	end := min(start+itemsPerPage, n)
	*items = (*items)[start:end]

	return (n + itemsPerPage - 1) / itemsPerPage, nil
}
