package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"tgmedia/internal/models"
)

// AnalysisMethodRules tags analyses produced by CaptionAnalyzer.
const AnalysisMethodRules = "rules"

var (
	productCodePattern = regexp.MustCompile(`#([A-Za-z]+)(\d*)`)
	quantityPattern    = regexp.MustCompile(`(?i)(?:\bqty\.?\s*:?\s*|\bx\s*)(\d+)\b`)
	notesPattern       = regexp.MustCompile(`\(([^)]*)\)`)
)

// CaptionAnalyzer extracts product fields from free-form captions such as
// "Blue Widget #ABC101524 x3 (gift box)".
type CaptionAnalyzer struct {
	now func() time.Time
}

func NewCaptionAnalyzer() *CaptionAnalyzer {
	return &CaptionAnalyzer{now: time.Now}
}

// Analyze returns nil for an empty caption.
func (a *CaptionAnalyzer) Analyze(caption string) *models.Analysis {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil
	}

	lines := strings.Split(caption, "\n")
	first := strings.TrimSpace(lines[0])
	result := &models.Analysis{
		Method:     AnalysisMethodRules,
		AnalyzedAt: a.now().UTC(),
	}

	if loc := productCodePattern.FindStringSubmatchIndex(first); loc != nil {
		letters := first[loc[2]:loc[3]]
		digits := first[loc[4]:loc[5]]
		result.ProductCode = strings.ToUpper(letters + digits)
		result.ProductName = cleanProductName(first[:loc[0]])
		result.VendorUID = vendorFromLetters(letters)
		result.PurchaseDate = parseCodeDate(digits)
	} else {
		result.ProductName = cleanProductName(notesPattern.ReplaceAllString(quantityPattern.ReplaceAllString(first, ""), ""))
	}

	if m := quantityPattern.FindStringSubmatch(first); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			result.Quantity = &n
		}
	}

	var notes []string
	for _, m := range notesPattern.FindAllStringSubmatch(caption, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			notes = append(notes, s)
		}
	}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(notesPattern.ReplaceAllString(line, ""))
		if line != "" {
			notes = append(notes, line)
		}
	}
	result.Notes = strings.Join(notes, "; ")

	return result
}

func cleanProductName(s string) string {
	return strings.Trim(strings.Join(strings.Fields(s), " "), " -:,")
}

func vendorFromLetters(letters string) string {
	letters = strings.ToUpper(letters)
	if len(letters) > 4 {
		return letters[:4]
	}
	return letters
}

// parseCodeDate reads the trailing mmddyy or mddyy digits of a product code.
func parseCodeDate(digits string) *time.Time {
	var month, day, year int
	var err error
	switch {
	case len(digits) >= 6:
		d := digits[len(digits)-6:]
		month, err = strconv.Atoi(d[0:2])
		if err == nil {
			day, err = strconv.Atoi(d[2:4])
		}
		if err == nil {
			year, err = strconv.Atoi(d[4:6])
		}
	case len(digits) == 5:
		month, err = strconv.Atoi(digits[0:1])
		if err == nil {
			day, err = strconv.Atoi(digits[1:3])
		}
		if err == nil {
			year, err = strconv.Atoi(digits[3:5])
		}
	default:
		return nil
	}
	if err != nil || month < 1 || month > 12 || day < 1 {
		return nil
	}

	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow; reject dates such as 02/30
	if t.Month() != time.Month(month) || t.Day() != day {
		return nil
	}
	return &t
}
