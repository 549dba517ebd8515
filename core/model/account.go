package model

// Account is the host's unit of persistent storage. Lamports hold the
// storage cost paid for Data.
type Account struct {
	Lamports uint64
	Owner    Address // component allowed to write Data
	Data     []byte
}

func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

func (a *Account) Clone() *Account {
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}

	return &cp
}

// AccountMeta describes one capability forwarded to a downstream call.
type AccountMeta struct {
	Address    Address
	IsSigner   bool
	IsWritable bool
}
