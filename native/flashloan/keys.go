package flashloan

import "github.com/ethereum/go-ethereum/common"

var (
	vaultRecordPrefix = []byte("flashloan/vault/")
	shareRecordPrefix = []byte("flashloan/shares/")
)

func vaultKey(asset string) []byte {
	buf := make([]byte, 0, len(vaultRecordPrefix)+len(asset))
	buf = append(buf, vaultRecordPrefix...)
	buf = append(buf, asset...)
	return buf
}

func shareKey(asset string, holder common.Address) []byte {
	buf := make([]byte, 0, len(shareRecordPrefix)+len(asset)+1+common.AddressLength)
	buf = append(buf, shareRecordPrefix...)
	buf = append(buf, asset...)
	buf = append(buf, ':')
	buf = append(buf, holder.Bytes()...)
	return buf
}
