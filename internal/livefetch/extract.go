package livefetch

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-rod/rod"

	"github.com/bowerhall/partscout/internal/browser"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// part page selectors
const (
	selName         = "h1[itemprop='name']"
	selPSNumber     = "span[itemprop='productID']"
	selMPN          = "span[itemprop='mpn']"
	selBrand        = "span[itemprop='brand'] span[itemprop='name']"
	selPrice        = "span.price.pd__price"
	selPriceText    = "span.js-partPrice"
	selAvailability = "span[itemprop='availability']"
	selDescription  = "div[itemprop='description']"
	selRating       = "meta[itemprop='ratingValue']"
	selReviewCount  = "meta[itemprop='reviewCount']"
	selBreadcrumb   = "div.js-breadcrumb-data"
	selPartVideo    = "#PartVideos ~ div div.yt-video[data-yt-init]"
	selRepairVideo  = "[data-part-media-type='RepairVideo'][data-source-id]"
	selRepairRating = "div.pd__repair-rating__container"
	selInfoBlocks   = "div.pd__wrap.row div.col-md-6.mt-3"

	selModelList = "div.pd__crossref__list.js-dataContainer"
	selModelCols = "div.col-6, div.col, a.col-6, a.col"

	selQnA       = "div.qna__question.js-qnaResponse"
	selStory     = "div.repair-story"
	selReview    = "div.pd__cust-review__submitted-review"
	selSearchKey = "div.js-searchKeys"
)

const maxModelScrolls = 50

var (
	priceRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	starWidthRe = regexp.MustCompile(`width:\s*(\d+)%`)
	modelLineRe = regexp.MustCompile(`(?i)model number\s+(.+)`)
	readMoreRe  = regexp.MustCompile(`\.\.\.\s*Read more|Read less`)
)

func extractPart(page *rod.Page, pageURL string) partsdb.Part {
	p := partsdb.Part{
		Name:               browser.Text(page, selName),
		PSNumber:           partsdb.NormalizePSNumber(browser.Text(page, selPSNumber)),
		ManufacturerNumber: browser.Text(page, selMPN),
		Availability:       browser.Text(page, selAvailability),
		Description:        browser.Text(page, selDescription),
		URL:                pageURL,
	}

	p.Manufacturer = browser.Text(page, selBrand)
	p.Brand = p.Manufacturer

	price := browser.Attr(page, selPrice, "content")
	if price == "" {
		price = browser.Text(page, selPriceText)
	}
	p.Price = parsePrice(price)

	p.Rating, _ = strconv.ParseFloat(browser.Attr(page, selRating, "content"), 64)
	p.NumReviews, _ = strconv.Atoi(browser.Attr(page, selReviewCount, "content"))
	p.PartType = partTypeFromBreadcrumb(browser.Text(page, selBreadcrumb))

	if id := browser.Attr(page, selPartVideo, "data-yt-init"); id != "" {
		p.InstallVideoURL = videoURL(id)
	} else if id := browser.Attr(page, selRepairVideo, "data-source-id"); id != "" {
		p.InstallVideoURL = videoURL(id)
	}

	p.InstallDifficulty, p.InstallTime = repairRating(page)
	p.ApplianceType = applianceFromBlocks(page)

	return p
}

// repairRating reads the difficulty and duration badges. Each badge is a
// d-flex row holding an svg icon and a bold paragraph.
func repairRating(page *rod.Page) (difficulty, duration string) {
	ok, box, err := page.Has(selRepairRating)
	if err != nil || !ok {
		return "", ""
	}

	rows, err := box.Elements("div.d-flex")
	if err != nil {
		return "", ""
	}
	for _, row := range rows {
		href := browser.Attr(row, "svg use", "href")
		text := browser.Text(row, "p")
		switch {
		case strings.Contains(href, "difficulty"):
			difficulty = text
		case strings.Contains(href, "duration"):
			duration = text
		}
	}
	return difficulty, duration
}

// applianceFromBlocks looks at the "works with the following products" block.
// A single listed product becomes the category tag; anything else is left to
// the classifier.
func applianceFromBlocks(page *rod.Page) string {
	blocks, err := page.Elements(selInfoBlocks)
	if err != nil {
		return ""
	}
	for _, b := range blocks {
		header := browser.Text(b, "div.bold.mb-1")
		if !strings.Contains(header, "works with the following products") {
			continue
		}
		body, _ := b.Text()
		body = strings.TrimSpace(strings.Replace(body, header, "", 1))
		return applianceFromProducts(body)
	}
	return ""
}

func extractModels(page *rod.Page, psNumber string) []partsdb.Compatibility {
	ok, list, err := page.Has(selModelList)
	if err != nil || !ok {
		return nil
	}

	// the list loads more rows as it scrolls; stop when the count settles
	last := -1
	for i := 0; i < maxModelScrolls; i++ {
		res, err := page.Eval(`(sel) => {
			const el = document.querySelector(sel)
			if (!el) return 0
			el.scrollTop = el.scrollHeight
			return el.querySelectorAll('div.row').length
		}`, selModelList)
		if err != nil {
			break
		}
		n := res.Value.Int()
		if n == last {
			break
		}
		last = n
	}

	rows, err := list.Elements("div.row")
	if err != nil {
		return nil
	}

	var out []partsdb.Compatibility
	for _, row := range rows {
		cols := browser.Texts(row, selModelCols)
		if len(cols) < 3 || cols[1] == "" {
			continue
		}
		out = append(out, partsdb.Compatibility{
			PSNumber:    psNumber,
			Brand:       cols[0],
			ModelNumber: cols[1],
			Description: cols[2],
		})
	}
	return out
}

func extractQnA(page *rod.Page, psNumber string) []partsdb.Annotation {
	els, err := page.Elements(selQnA)
	if err != nil {
		return nil
	}

	var out []partsdb.Annotation
	for _, el := range els {
		a := partsdb.Annotation{
			Kind:     partsdb.KindQnA,
			PSNumber: psNumber,
			LocalID:  browser.AttrOf(el, "id"),
			Author:   browser.Text(el, "div.title-md.bold"),
			Title:    browser.Text(el, ":scope > "+selSearchKey),
			Body:     browser.Text(el, "div.qna__ps-answer__msg "+selSearchKey),
		}
		if a.Title == "" {
			a.Title = browser.Text(el, selSearchKey)
		}
		for _, line := range browser.Texts(el, "div.bold") {
			if m := modelLineRe.FindStringSubmatch(line); m != nil {
				a.ModelNumber = strings.TrimSpace(m[1])
				break
			}
		}
		a.Helpful, _ = strconv.Atoi(browser.Attr(el, "p.js-displayRating", "data-found-helpful"))

		if a.Title != "" || a.Body != "" {
			out = append(out, a)
		}
	}
	return out
}

func extractStories(page *rod.Page, psNumber string) []partsdb.Annotation {
	els, err := page.Elements(selStory)
	if err != nil {
		return nil
	}

	var out []partsdb.Annotation
	for _, el := range els {
		a := partsdb.Annotation{
			Kind:     partsdb.KindStory,
			PSNumber: psNumber,
			LocalID:  browser.Attr(el, "div.js-repairStoryVoting", "data-id"),
			Title:    browser.Text(el, "div.repair-story__title"),
			Author:   browser.Text(el, "ul.repair-story__details li div.bold"),
		}
		a.Body = cleanStory(browser.Text(el, "div.repair-story__instruction "+selSearchKey))
		for _, line := range browser.Texts(el, "ul.repair-story__details li") {
			if v, ok := strings.CutPrefix(line, "Difficulty Level:"); ok {
				a.Difficulty = strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(line, "Total Repair Time:"); ok {
				a.RepairTime = strings.TrimSpace(v)
			}
		}
		a.Helpful, _ = strconv.Atoi(browser.Attr(el, "div.js-displayRating", "data-found-helpful"))

		if a.Title != "" || a.Body != "" {
			out = append(out, a)
		}
	}
	return out
}

func extractReviews(page *rod.Page, psNumber string) []partsdb.Annotation {
	els, err := page.Elements(selReview)
	if err != nil {
		return nil
	}

	var out []partsdb.Annotation
	for _, el := range els {
		a := partsdb.Annotation{
			Kind:     partsdb.KindReview,
			PSNumber: psNumber,
			Author:   browser.Text(el, "div.pd__cust-review__submitted-review__header span.bold"),
			Title:    browser.Text(el, ":scope > div.bold"),
			Body:     browser.Text(el, selSearchKey),
			Rating:   starsFromStyle(browser.Attr(el, "div.rating__stars__upper", "style")),
		}
		body, _ := el.Text()
		a.Verified = strings.Contains(body, "Verified Purchase")
		a.LocalID = reviewID(a.Author, browser.Text(el, "div.pd__cust-review__submitted-review__header"), a.Title)

		if a.Title != "" || a.Body != "" {
			out = append(out, a)
		}
	}
	return out
}

func parsePrice(s string) float64 {
	m := priceRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(m, 64)
	return v
}

// starsFromStyle converts a star bar width (100% is five stars) into a rating.
func starsFromStyle(style string) float64 {
	m := starWidthRe.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	pct, _ := strconv.Atoi(m[1])
	return float64((pct + 10) / 20)
}

// partTypeFromBreadcrumb takes the second to last crumb; the last is the part itself.
func partTypeFromBreadcrumb(raw string) string {
	var crumbs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &crumbs); err != nil || len(crumbs) < 3 {
		return ""
	}
	return strings.TrimSpace(crumbs[len(crumbs)-2].Name)
}

func applianceFromProducts(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" || strings.ContainsAny(s, ",\n") {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func cleanStory(s string) string {
	return strings.TrimSpace(readMoreRe.ReplaceAllString(s, ""))
}

func videoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func reviewID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:16]
}
