package v1

import "strconv"

func itoa(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}
