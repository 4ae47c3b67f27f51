// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go7z, a derivative of go-gameid.
//
// go7z is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go7z is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go7z.  If not, see <https://www.gnu.org/licenses/>.

package sevenzip

// signature is the fixed 6-byte magic every 7z archive opens with, followed
// by a 2-byte version, the 4-byte CRC of the start header and the 20-byte
// start header itself.
var signature = [6]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

const (
	startHeaderSize = 20
	searchLimit     = 1 << 20 // how far back findSignature scans for a fallback signature
)

// Property IDs, as laid out in the 7z header grammar (kHeader and its
// nested kStreamsInfo/kFilesInfo blocks).
const (
	idEnd                = 0x00
	idHeader             = 0x01
	idArchiveProperties  = 0x02
	idAdditionalStreams  = 0x03
	idMainStreamsInfo    = 0x04
	idFilesInfo          = 0x05
	idPackInfo           = 0x06
	idUnpackInfo         = 0x07
	idSubStreamsInfo     = 0x08
	idSize               = 0x09
	idCRC                = 0x0A
	idFolder             = 0x0B
	idCodersUnpackSize   = 0x0C
	idNumUnpackStream    = 0x0D
	idEmptyStream        = 0x0E
	idEmptyFile          = 0x0F
	idAnti               = 0x10
	idName               = 0x11
	idCTime              = 0x12
	idATime              = 0x13
	idMTime              = 0x14
	idWinAttributes      = 0x15
	idComment            = 0x16
	idEncodedHeader      = 0x17
	idStartPos           = 0x18
	idDummy              = 0x19
)
