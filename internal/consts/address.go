package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	// Programs
	SystemProgramStr = "11111111111111111111111111111111"

	// DefaultProgramIDStr 为 kvstore 程序的默认部署地址，可通过配置 program_id 覆盖
	DefaultProgramIDStr = "59j4t3Gwow8FN1TV5F4Rm8GuG7eXc2y4WStzbZ1AJ8Ro"
)
