package consts

const (
	// 账户租金豁免计算参数（与 Solana 主网一致）
	AccountStorageOverhead uint64 = 128  // 每个账户的元数据开销（字节）
	LamportsPerByteYear    uint64 = 3480 // 每字节每年的租金
	ExemptionThresholdYear uint64 = 2    // 豁免所需年数

	// LamportsPerSignature 每个签名收取的手续费
	LamportsPerSignature uint64 = 5000

	// MaxRecentBlockhashes recent blockhash 的有效窗口（slot 数），超出视为过期
	MaxRecentBlockhashes = 150

	// MaxPermittedDataLength 单个账户允许的最大数据长度（10 MiB）
	MaxPermittedDataLength uint64 = 10 * 1024 * 1024
)

// MinimumBalanceForRentExemption 计算 dataLen 字节账户的免租最低余额
func MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * LamportsPerByteYear * ExemptionThresholdYear
}
