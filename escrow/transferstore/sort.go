package transferstore

import "sort"

func sortByTime(ts []Transfer) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Time.Before(ts[j].Time)
	})
}
