package ebay

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

// Validator turns loosely typed marketplace items into listing snapshots.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Rejection is one item of a batch that failed validation.
type Rejection struct {
	Index  int
	ItemID string
	Err    error
}

// ValidateBatch keeps the relative order of accepted items.
func (v *Validator) ValidateBatch(raws []json.RawMessage) ([]listing.Snapshot, []Rejection) {
	snapshots := make([]listing.Snapshot, 0, len(raws))
	var rejections []Rejection

	for i, raw := range raws {
		snap, err := v.Validate(raw)
		if err != nil {
			rejections = append(rejections, Rejection{Index: i, ItemID: peekItemID(raw), Err: err})
			continue
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rejections
}

// Validate accepts a search summary or an item detail payload. The returned
// error is a *RejectionError.
func (v *Validator) Validate(raw json.RawMessage) (listing.Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return listing.Snapshot{}, reject("payload", "not a JSON object")
	}

	var (
		snap listing.Snapshot
		err  error
	)

	if snap.ExternalID, err = requiredString(fields, "itemId"); err != nil {
		return listing.Snapshot{}, err
	}
	if snap.Title, err = requiredString(fields, "title"); err != nil {
		return listing.Snapshot{}, err
	}

	seller, ok := object(fields["seller"])
	if !ok {
		return listing.Snapshot{}, reject("seller", "missing or not an object")
	}
	if snap.SellerUsername, err = requiredString(seller, "username"); err != nil {
		return listing.Snapshot{}, reject("seller.username", err.(*RejectionError).Reason)
	}

	webURL, err := requiredString(fields, "itemWebUrl")
	if err != nil {
		return listing.Snapshot{}, err
	}
	if snap.WebURL, err = canonicalURL(webURL); err != nil {
		return listing.Snapshot{}, reject("itemWebUrl", err.Error())
	}

	if snap.OriginDate, err = requiredTime(fields, "itemOriginDate"); err != nil {
		return listing.Snapshot{}, err
	}
	if snap.ListedDate, err = requiredTime(fields, "itemCreationDate"); err != nil {
		return listing.Snapshot{}, err
	}
	if snap.EndDate, err = requiredTime(fields, "itemEndDate"); err != nil {
		return listing.Snapshot{}, err
	}

	if raw, ok := fields["bidCount"]; ok && !isNull(raw) {
		n, ok := flexibleInt(raw)
		if !ok {
			return listing.Snapshot{}, reject("bidCount", "not an integer")
		}
		snap.BidCount = n
	}

	snap.LeafCategoryID = leafCategoryID(fields)
	snap.CategoryCandidates = categoryCandidates(fields["categories"])
	if len(snap.CategoryCandidates) == 0 {
		snap.CategoryCandidates = categoryPathCandidates(fields["categoryIdPath"], fields["categoryPath"])
	}
	if image, ok := object(fields["image"]); ok {
		snap.ImageURL, _ = str(image["imageUrl"])
	}
	snap.Condition, _ = str(fields["condition"])
	snap.ShippingOptions = passthrough(fields["shippingOptions"])
	snap.BuyingOptions = passthrough(fields["buyingOptions"])
	snap.ListPrice = v.price(fields["price"])
	snap.CurrentBidPrice = v.price(fields["currentBidPrice"])

	if err := v.validate.Struct(snap); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return listing.Snapshot{}, reject(verrs[0].Field(), "failed "+verrs[0].Tag()+" rule")
		}
		return listing.Snapshot{}, reject("payload", err.Error())
	}

	return snap, nil
}

// price only yields a value when both amount and a valid currency are present.
func (v *Validator) price(raw json.RawMessage) *listing.Price {
	fields, ok := object(raw)
	if !ok {
		return nil
	}

	amount, ok := flexibleDecimal(fields["value"])
	if !ok {
		return nil
	}
	currency, ok := str(fields["currency"])
	if !ok {
		return nil
	}

	p := listing.Price{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}
	if err := v.validate.Struct(p); err != nil {
		return nil
	}
	return &p
}

func leafCategoryID(fields map[string]json.RawMessage) *int {
	var ids []json.RawMessage
	if err := json.Unmarshal(fields["leafCategoryIds"], &ids); err == nil && len(ids) > 0 {
		if id, ok := flexibleInt(ids[0]); ok {
			return &id
		}
		return nil
	}

	// item detail payloads carry a single categoryId
	if id, ok := flexibleInt(fields["categoryId"]); ok {
		return &id
	}
	return nil
}

func categoryCandidates(raw json.RawMessage) []listing.CategoryCandidate {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	var candidates []listing.CategoryCandidate
	for _, e := range entries {
		id, ok := flexibleInt(e["categoryId"])
		if !ok {
			continue
		}
		name, _ := str(e["categoryName"])
		candidates = append(candidates, listing.CategoryCandidate{ID: id, Name: name})
	}
	return candidates
}

// categoryPathCandidates reads the "|" separated root-to-leaf paths of an item
// detail payload and returns them leaf first, like the search summary list.
func categoryPathCandidates(rawIDs, rawNames json.RawMessage) []listing.CategoryCandidate {
	idPath, ok := str(rawIDs)
	if !ok || strings.TrimSpace(idPath) == "" {
		return nil
	}
	namePath, _ := str(rawNames)

	ids := strings.Split(idPath, "|")
	names := strings.Split(namePath, "|")
	// names only line up with ids when both paths have the same depth
	if len(names) != len(ids) {
		names = nil
	}

	candidates := make([]listing.CategoryCandidate, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		id, err := strconv.Atoi(strings.TrimSpace(ids[i]))
		if err != nil {
			continue
		}
		c := listing.CategoryCandidate{ID: id}
		if names != nil {
			c.Name = strings.TrimSpace(names[i])
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// canonicalURL drops the query string and fragment.
func canonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("not an absolute URL")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", reject(key, "missing")
	}
	s, ok := str(raw)
	if !ok {
		return "", reject(key, "not a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", reject(key, "empty")
	}
	return s, nil
}

func requiredTime(fields map[string]json.RawMessage, key string) (time.Time, error) {
	s, err := requiredString(fields, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, reject(key, "not an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func str(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// flexibleInt accepts 42 and "42"; the marketplace sends ids as strings.
func flexibleInt(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := strconv.Atoi(n.String())
		return v, err == nil
	}
	if s, ok := str(raw); ok {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		return v, err == nil
	}
	return 0, false
}

func flexibleDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	if s, ok := str(raw); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func passthrough(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func peekItemID(raw json.RawMessage) string {
	var probe struct {
		ItemID string `json:"itemId"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ItemID
}
