package util

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Round2 rounds a monetary value to 2 decimal places. Every computed
// money boundary (tax, total) passes through here.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GenerateOrderNumber builds {prefix}{YYYYMMDDHHMMSS}{4-digit random}.
// Collisions are possible but negligible; the order_number column is
// unique so one would surface as an insert error.
func GenerateOrderNumber(prefix string) string {
	return fmt.Sprintf("%s%s%04d", prefix, time.Now().Format("20060102150405"), rand.Intn(10000))
}

// FormatToken builds {single-letter-prefix}{3-digit zero-padded sequence}.
func FormatToken(prefix byte, number int) string {
	return fmt.Sprintf("%c%03d", prefix, number)
}

// EstimatePreparationTime returns the initial estimate in minutes:
// 10 minutes base plus 2 per item.
func EstimatePreparationTime(itemCount int) int {
	return 10 + itemCount*2
}

// ClampPage normalizes pagination inputs: page is 1-indexed, pageSize
// bounded to [1,max] with a default when unset.
func ClampPage(page, pageSize, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
