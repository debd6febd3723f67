package rax

// Synthetic PID scheme: each (block, parameter) pair is assigned a PID
// in a private range well clear of standardized diagnostic PIDs, so
// callers can request live channels without colliding with OBD-II.
//
//	pid = PIDBase + blockIndex*100 + paramIndex
const PIDBase = 50000

// SyntheticPID encodes a block index and parameter index.
func SyntheticPID(blockIndex, paramIndex int) int {
	return PIDBase + blockIndex*100 + paramIndex
}

// SplitPID decodes a synthetic PID back to (blockIndex, paramIndex).
// ok is false when the PID is outside the private range or either
// index does not exist in the registry.
func SplitPID(pid int) (blockIndex, paramIndex int, ok bool) {
	if pid < PIDBase {
		return 0, 0, false
	}
	n := pid - PIDBase
	blockIndex = n / 100
	paramIndex = n % 100
	if blockIndex >= len(Blocks) {
		return 0, 0, false
	}
	if paramIndex >= len(Blocks[blockIndex].Params) {
		return 0, 0, false
	}
	return blockIndex, paramIndex, true
}

// BlocksForPIDs resolves the minimal set of blocks covering the
// requested PIDs, in registry order. Unknown PIDs are reported back so
// the caller can surface them instead of silently polling nothing.
func BlocksForPIDs(pids []int) (blocks []*Block, unknown []int) {
	need := make(map[int]bool)
	for _, pid := range pids {
		blockIdx, _, ok := SplitPID(pid)
		if !ok {
			unknown = append(unknown, pid)
			continue
		}
		need[blockIdx] = true
	}
	for i, b := range Blocks {
		if need[i] {
			blocks = append(blocks, b)
		}
	}
	return blocks, unknown
}
