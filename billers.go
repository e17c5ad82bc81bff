package corebank

// Biller is a payee outside the bank that customers can pay bills to.
type Biller struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// BillerDirectory is the read-only biller catalog.
type BillerDirectory interface {
	Lookup(id string) (Biller, bool)
}

// StaticBillerDirectory is an in-process catalog keyed by biller id.
type StaticBillerDirectory map[string]Biller

func (d StaticBillerDirectory) Lookup(id string) (Biller, bool) {
	biller, ok := d[id]
	return biller, ok
}

func DefaultBillerDirectory() StaticBillerDirectory {
	billers := []Biller{
		{ID: "ELEC001", Name: "State Electricity Board", Category: "ELECTRICITY"},
		{ID: "WATER001", Name: "Municipal Water Supply", Category: "WATER"},
		{ID: "GAS001", Name: "City Gas Distribution", Category: "GAS"},
		{ID: "MOB001", Name: "Mobile Postpaid", Category: "MOBILE"},
		{ID: "BB001", Name: "Broadband Services", Category: "BROADBAND"},
		{ID: "DTH001", Name: "DTH Television", Category: "DTH"},
		{ID: "INS001", Name: "Life Insurance Premium", Category: "INSURANCE"},
	}
	d := make(StaticBillerDirectory, len(billers))
	for _, biller := range billers {
		d[biller.ID] = biller
	}
	return d
}
