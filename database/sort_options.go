package database

const (
	SortDefault  = "default" // featured first, then manual order, then newest capture
	SortDateAsc  = "date_asc"
	SortDateDesc = "date_desc"
	SortSizeDesc = "size_desc"
)

const DefaultSortOrder = SortDefault

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortDefault, SortDateAsc, SortDateDesc, SortSizeDesc:
		return true
	default:
		return false
	}
}

// PhotoOrderBy returns the ORDER BY terms for a sort option. Unknown options
// fall back to the default ordering. The id tiebreaker keeps pages stable.
func PhotoOrderBy(order string) []string {
	switch order {
	case SortDateAsc:
		return []string{"photos.taken_at ASC", "photos.id ASC"}
	case SortDateDesc:
		return []string{"photos.taken_at DESC", "photos.id DESC"}
	case SortSizeDesc:
		return []string{"photos.size DESC", "photos.id DESC"}
	default:
		return []string{"photos.is_featured DESC", "photos.order_index ASC", "photos.taken_at DESC", "photos.id DESC"}
	}
}
