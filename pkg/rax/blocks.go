package rax

// Block layouts below were mapped by hand against logged RAM dumps.
// Bit offsets are MSB-first within the block; several fields cross
// byte boundaries, which is why decoding goes through pkg/bitfield
// rather than plain byte indexing.

// Blocks is the static registry. Index in this slice is the block
// index used by the synthetic PID scheme.
var Blocks = []*Block{
	{
		ID:             0,
		Name:           "RAX",
		RequestAddress: 0xFF8000,
		Size:           16,
		Params: []Param{
			{Name: "RPM", BitOffset: 0, BitLength: 16, Scale: 1, Unit: "rpm", Min: 0, Max: 9500},
			{Name: "Load", BitOffset: 16, BitLength: 16, Scale: 0.3125, Unit: "%", Min: 0, Max: 400},
			{Name: "TimingAdv", BitOffset: 32, BitLength: 8, Signed: true, Scale: 1, Unit: "deg", Min: -20, Max: 60},
			{Name: "KnockSum", BitOffset: 40, BitLength: 8, Scale: 1, Unit: "count", Min: 0, Max: 50},
			{Name: "AFRMap", BitOffset: 48, BitLength: 8, Scale: 0.1, Offset: 7.5, Unit: "afr", Min: 9, Max: 20},
			{Name: "CoolantTemp", BitOffset: 56, BitLength: 8, Scale: 1, Offset: -40, Unit: "C", Min: -40, Max: 130},
			{Name: "Boost", BitOffset: 64, BitLength: 16, Signed: true, Scale: 0.01, Unit: "psi", Min: -14.7, Max: 45},
			{Name: "WGDC", BitOffset: 80, BitLength: 8, Scale: 0.5, Unit: "%", Min: 0, Max: 100},
			{Name: "ClosedLoop", BitOffset: 88, BitLength: 1, Scale: 1, Unit: "flag", Min: 0, Max: 1},
			{Name: "MAFHz", BitOffset: 89, BitLength: 12, Scale: 1.5625, Unit: "Hz", Min: 0, Max: 4000},
			{Name: "IAT", BitOffset: 104, BitLength: 8, Scale: 1, Offset: -40, Unit: "C", Min: -40, Max: 120},
			{Name: "BattVolt", BitOffset: 112, BitLength: 8, Scale: 0.0733, Unit: "V", Min: 0, Max: 18},
		},
	},
	{
		ID:             1,
		Name:           "SST",
		RequestAddress: 0xFF8400,
		Size:           12,
		Params: []Param{
			{Name: "GearPos", BitOffset: 0, BitLength: 4, Scale: 1, Unit: "gear", Min: 0, Max: 6},
			{Name: "ShiftMode", BitOffset: 4, BitLength: 4, Scale: 1, Unit: "mode", Min: 0, Max: 5},
			{Name: "ClutchATemp", BitOffset: 8, BitLength: 12, Scale: 0.1, Offset: -40, Unit: "C", Min: -40, Max: 300},
			{Name: "ClutchBTemp", BitOffset: 20, BitLength: 12, Scale: 0.1, Offset: -40, Unit: "C", Min: -40, Max: 300},
			{Name: "LinePressure", BitOffset: 32, BitLength: 16, Scale: 0.01, Unit: "bar", Min: 0, Max: 30},
			{Name: "InputShaftRPM", BitOffset: 48, BitLength: 16, Scale: 1, Unit: "rpm", Min: 0, Max: 9500},
			{Name: "OutputShaftRPM", BitOffset: 64, BitLength: 16, Scale: 1, Unit: "rpm", Min: 0, Max: 9500},
			{Name: "ClutchSlip", BitOffset: 80, BitLength: 16, Signed: true, Scale: 1, Unit: "rpm", Min: -2000, Max: 2000},
		},
	},
}

// BlockByID returns the block definition with the given ID, or nil.
func BlockByID(id int) *Block {
	for _, b := range Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// ParamName resolves a synthetic PID to its parameter name, or "".
func ParamName(pid int) string {
	blockIdx, paramIdx, ok := SplitPID(pid)
	if !ok {
		return ""
	}
	return Blocks[blockIdx].Params[paramIdx].Name
}
