package listing

const UnknownCategoryName = "Unknown"

// ResolveCategory picks the category shown for a listing.
//
// A leaf id from the marketplace wins, and its name must be corroborated by the
// candidate list or it is reported as unknown. Without a leaf id the first
// candidate is taken as-is. With neither, the watched category id is used.
func ResolveCategory(snap Snapshot, scrapedCategoryID int) (int, string) {
	if snap.LeafCategoryID != nil {
		id := *snap.LeafCategoryID
		for _, c := range snap.CategoryCandidates {
			if c.ID == id {
				return id, c.Name
			}
		}
		return id, UnknownCategoryName
	}

	if len(snap.CategoryCandidates) > 0 {
		first := snap.CategoryCandidates[0]
		return first.ID, first.Name
	}

	return scrapedCategoryID, UnknownCategoryName
}
