package lzma

// lengthCoder decodes the 4-10-bit match-length code used for both normal
// matches and rep-matches: a one- or two-bit choice selects among a low (2-9), mid
// (10-17) or high (18-273) bit tree, each contexted by pos_state for the low
// and mid trees.
type lengthCoder struct {
	choice [2]uint16
	low    [posStatesMax][1 << 3]uint16
	mid    [posStatesMax][1 << 3]uint16
	high   [1 << 8]uint16
}

func newLengthCoder() *lengthCoder {
	c := &lengthCoder{}
	c.reset()
	return c
}

func (c *lengthCoder) reset() {
	c.choice[0] = probInitValue
	c.choice[1] = probInitValue
	for i := range c.low {
		for j := range c.low[i] {
			c.low[i][j] = probInitValue
		}
	}
	for i := range c.mid {
		for j := range c.mid[i] {
			c.mid[i][j] = probInitValue
		}
	}
	for i := range c.high {
		c.high[i] = probInitValue
	}
}

func (c *lengthCoder) decode(rc *rangeDecoder, posState uint32) (int, error) {
	bit, err := rc.decodeBit(c.choice[:], 0)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		sym, err := rc.decodeBitTree(c.low[posState][:])
		if err != nil {
			return 0, err
		}
		return matchLenMin + sym, nil
	}
	bit, err = rc.decodeBit(c.choice[:], 1)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		sym, err := rc.decodeBitTree(c.mid[posState][:])
		if err != nil {
			return 0, err
		}
		return matchLenMin + 8 + sym, nil
	}
	sym, err := rc.decodeBitTree(c.high[:])
	if err != nil {
		return 0, err
	}
	return matchLenMin + 16 + sym, nil
}
