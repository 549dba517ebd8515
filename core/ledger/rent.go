package ledger

// AccountStorageOverhead is charged on top of every account's data length.
const AccountStorageOverhead = 128

// Rent prices persistent account storage.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64 // years of rent an account must hold
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2,
	}
}

// MinimumBalance is the storage cost of an account holding space bytes.
func (r Rent) MinimumBalance(space int) uint64 {
	return (AccountStorageOverhead + uint64(space)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

func (r Rent) IsExempt(lamports uint64, space int) bool {
	return lamports >= r.MinimumBalance(space)
}
