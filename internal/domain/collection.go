package domain

// OptionalPayment is an extra output a buyer may include in the swap
// transaction. Only outputs matching a declared entry exactly, by address
// and amount, are recognized.
type OptionalPayment struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Amount      int64  `json:"amount" yaml:"amount"`
	Address     string `json:"address" yaml:"address"`
}

// CollectionPolicy is the immutable selling configuration for one
// collection. It is loaded once at startup and consumed read-only.
type CollectionPolicy struct {
	Slug             string            `yaml:"slug"`
	Title            string            `yaml:"title"`
	PriceSats        int64             `yaml:"price_sats"`
	PaymentAddress   string            `yaml:"payment_address"`
	Launchpad        bool              `yaml:"launchpad"`
	OptionalPayments []OptionalPayment `yaml:"optional_payments"`
}
