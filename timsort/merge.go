package timsort

/**
合并堆栈索引i和i+1的两个run。i必须是堆栈上倒数第二个或倒数第三个run。
换句话说，i必须等于stackSize-2或stackSize-3。
*/
func (c *timSort[T]) mergeAt(i int) {
	if c.ts.stackSize < 2 {
		panic("assert stackSize >= 2")
	}
	if i < 0 || i != c.ts.stackSize-2 && i != c.ts.stackSize-3 {
		panic("assert i >= 0 && (i == stackSize - 2 || i == stackSize - 3)")
	}

	base1 := c.ts.runBase[i]
	len1 := c.ts.runLen[i]
	base2 := c.ts.runBase[i+1]
	len2 := c.ts.runLen[i+1]
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1 + len1 == base2")
	}

	/**
	记录合并的run的长度;如果i是倒数第三个
	[run1,run2,run3,run4] i=run2
	合并成
	[run1,run2+run3,run4]
	*/
	c.ts.runLen[i] = len1 + len2
	if i == c.ts.stackSize-3 {
		c.ts.runBase[i+1] = c.ts.runBase[i+2]
		c.ts.runLen[i+1] = c.ts.runLen[i+2]
	}
	c.ts.stackSize--

	// run1=1367，run2=489: run1中小于等于4的13已经就位
	k := gallopRight(c.a[base2], c.a, base1, len1, 0, c.cmp)
	base1 += k
	len1 -= k
	if len1 == 0 {
		return
	}
	// run2中大于等于7的89已经就位
	len2 = gallopLeft(c.a[base1+len1-1], c.a, base2, len2, len2-1, c.cmp)
	if len2 == 0 {
		return
	}

	// 使用min(len1, len2)大小的tmp合并剩余部分
	if len1 <= len2 {
		c.mergeLo(base1, len1, base2, len2)
	} else {
		c.mergeHi(base1, len1, base2, len2)
	}
}

// mergeLo merges two adjacent runs in place, front to back. len1 <= len2
// and the first element of run 1 is greater than the first of run 2.
func (c *timSort[T]) mergeLo(base1 int, len1 int, base2 int, len2 int) {
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1 + len1 == base2")
	}

	a, cmp := c.a, c.cmp
	tmp := c.ensureCapacity(len1)
	cursor1 := 0     // Indexes into tmp array
	cursor2 := base2 // Indexes into a
	dest := base1    // Indexes into a
	copy(tmp, a[base1:base1+len1])

	// 移动第二个run的第一个元素并处理退化的情况
	a[dest] = a[cursor2]
	dest++
	cursor2++
	len2--
	if len2 == 0 {
		copy(a[dest:], tmp[cursor1:cursor1+len1])
		return
	}
	if len1 == 1 {
		copy(a[dest:], a[cursor2:cursor2+len2])
		a[dest+len2] = tmp[cursor1] // Last elt of run 1 to end of merge
		return
	}

	minGallop := c.minGallop
outer:
	for {
		count1 := 0 // Number of times in a row that first run won
		count2 := 0 // Number of times in a row that second run won

		// 逐个比较, 直到某一个run连续胜出minGallop次
		for {
			if cmp(a[cursor2], tmp[cursor1]) < 0 {
				a[dest] = a[cursor2]
				dest++
				cursor2++
				count2++
				count1 = 0
				len2--
				if len2 == 0 {
					break outer
				}
			} else {
				a[dest] = tmp[cursor1]
				dest++
				cursor1++
				count1++
				count2 = 0
				len1--
				if len1 == 1 {
					break outer
				}
			}
			if (count1 | count2) >= minGallop {
				break
			}
		}

		// gallop模式, 直到两个run都不再连续胜出
		for {
			count1 = gallopRight(a[cursor2], tmp, cursor1, len1, 0, cmp)
			if count1 != 0 {
				copy(a[dest:], tmp[cursor1:cursor1+count1])
				dest += count1
				cursor1 += count1
				len1 -= count1
				if len1 <= 1 { // len1 == 1 || len1 == 0
					break outer
				}
			}
			a[dest] = a[cursor2]
			dest++
			cursor2++
			len2--
			if len2 == 0 {
				break outer
			}

			count2 = gallopLeft(tmp[cursor1], a, cursor2, len2, 0, cmp)
			if count2 != 0 {
				copy(a[dest:], a[cursor2:cursor2+count2])
				dest += count2
				cursor2 += count2
				len2 -= count2
				if len2 == 0 {
					break outer
				}
			}
			a[dest] = tmp[cursor1]
			dest++
			cursor1++
			len1--
			if len1 == 1 {
				break outer
			}
			minGallop--
			if count1 < minGallopInit && count2 < minGallopInit {
				break
			}
		}
		if minGallop < 0 {
			minGallop = 0
		}
		minGallop += 2 // Penalize for leaving gallop mode
	}
	c.minGallop = max(minGallop, 1)

	switch {
	case len1 == 1:
		if len2 <= 0 {
			panic("assert len2 > 0")
		}
		copy(a[dest:], a[cursor2:cursor2+len2])
		a[dest+len2] = tmp[cursor1] // Last elt of run 1 to end of merge
	case len1 == 0:
		panic(ErrContractViolation)
	default:
		copy(a[dest:], tmp[cursor1:cursor1+len1])
	}
}

/**
与mergeLo类似，但只有当len1 >= len2时才应该调用该方法, 从后往前合并。
参数:
base1—第一个run中要合并的第一个元素的索引
len1 -第一个run的长度(必须是> 0)
base2 -第二个run中要合并的第一个元素的索引(必须是base1 + len1)
len2 -第二个run的长度(必须是> 0)
*/
func (c *timSort[T]) mergeHi(base1 int, len1 int, base2 int, len2 int) {
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1 + len1 == base2")
	}

	a, cmp := c.a, c.cmp
	tmp := c.ensureCapacity(len2)
	copy(tmp, a[base2:base2+len2])

	cursor1 := base1 + len1 - 1 // Indexes into a
	cursor2 := len2 - 1         // Indexes into tmp array
	dest := base2 + len2 - 1    // Indexes into a

	a[dest] = a[cursor1]
	dest--
	cursor1--
	len1--
	if len1 == 0 {
		copy(a[dest-(len2-1):], tmp[:len2])
		return
	}
	if len2 == 1 {
		dest -= len1
		cursor1 -= len1
		copy(a[dest+1:], a[cursor1+1:cursor1+1+len1])
		a[dest] = tmp[cursor2]
		return
	}

	minGallop := c.minGallop
outer:
	for {
		count1 := 0 // Number of times in a row that first run won
		count2 := 0 // Number of times in a row that second run won

		for {
			if cmp(tmp[cursor2], a[cursor1]) < 0 {
				a[dest] = a[cursor1]
				dest--
				cursor1--
				count1++
				count2 = 0
				len1--
				if len1 == 0 {
					break outer
				}
			} else {
				a[dest] = tmp[cursor2]
				dest--
				cursor2--
				count2++
				count1 = 0
				len2--
				if len2 == 1 {
					break outer
				}
			}
			if (count1 | count2) >= minGallop {
				break
			}
		}

		for {
			count1 = len1 - gallopRight(tmp[cursor2], a, base1, len1, len1-1, cmp)
			if count1 != 0 {
				dest -= count1
				cursor1 -= count1
				len1 -= count1
				copy(a[dest+1:], a[cursor1+1:cursor1+1+count1])
				if len1 == 0 {
					break outer
				}
			}
			a[dest] = tmp[cursor2]
			dest--
			cursor2--
			len2--
			if len2 == 1 {
				break outer
			}

			count2 = len2 - gallopLeft(a[cursor1], tmp, 0, len2, len2-1, cmp)
			if count2 != 0 {
				dest -= count2
				cursor2 -= count2
				len2 -= count2
				copy(a[dest+1:], tmp[cursor2+1:cursor2+1+count2])
				if len2 <= 1 { // len2 == 1 || len2 == 0
					break outer
				}
			}
			a[dest] = a[cursor1]
			dest--
			cursor1--
			len1--
			if len1 == 0 {
				break outer
			}
			minGallop--
			if count1 < minGallopInit && count2 < minGallopInit {
				break
			}
		}
		if minGallop < 0 {
			minGallop = 0
		}
		minGallop += 2 // Penalize for leaving gallop mode
	}
	c.minGallop = max(minGallop, 1)

	switch {
	case len2 == 1:
		if len1 <= 0 {
			panic("assert len1 > 0")
		}
		dest -= len1
		cursor1 -= len1
		copy(a[dest+1:], a[cursor1+1:cursor1+1+len1])
		a[dest] = tmp[cursor2] // Move first elt of run2 to front of merge
	case len2 == 0:
		panic(ErrContractViolation)
	default:
		copy(a[dest-(len2-1):], tmp[:len2])
	}
}

/**
找到key在有序区间a[base:base+len]中的插入位置; 如果区间中有与key相等的元素, 返回最左边那个的下标。
hint越靠近结果，这个方法运行得越快。
返回: k, 0 <= k <= len 使 a[base+k-1] < key <= a[base+k]
*/
func gallopLeft[T any](key T, a []T, base int, len int, hint int, cmp func(a, b T) int) int {
	if len <= 0 || hint < 0 || hint >= len {
		panic("assert len > 0 && hint >= 0 && hint < len")
	}
	lastOfs := 0
	ofs := 1
	if cmp(key, a[base+hint]) > 0 {
		// 从左往右 until a[base+hint+lastOfs] < key <= a[base+hint+ofs]
		maxOfs := len - hint
		for ofs < maxOfs && cmp(key, a[base+hint+ofs]) > 0 {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 { // int overflow
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs += hint
		ofs += hint
	} else { // key <= a[base + hint]
		// 从右往左 until a[base+hint-ofs] < key <= a[base+hint-lastOfs]
		maxOfs := hint + 1
		for ofs < maxOfs && cmp(key, a[base+hint-ofs]) <= 0 {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 { // int overflow
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs, ofs = hint-ofs, hint-lastOfs
	}
	if -1 > lastOfs || lastOfs >= ofs || ofs > len {
		panic("assert -1 <= lastOfs && lastOfs < ofs && ofs <= len")
	}

	// a[base+lastOfs] < key <= a[base+ofs], 二分查找
	lastOfs++
	for lastOfs < ofs {
		m := lastOfs + ((ofs - lastOfs) >> 1)
		if cmp(key, a[base+m]) > 0 {
			lastOfs = m + 1 // a[base + m] < key
		} else {
			ofs = m // key <= a[base + m]
		}
	}
	return ofs
}

/**
与gallopLeft一样，不同之处在于，如果范围包含与key相等的元素，那么gallopRight将返回最右边相等元素之后的索引。
返回: k, 0 <= k <= len 使 a[base+k-1] <= key < a[base+k]
*/
func gallopRight[T any](key T, a []T, base int, len int, hint int, cmp func(a, b T) int) int {
	if len <= 0 || hint < 0 || hint >= len {
		panic("assert len > 0 && hint >= 0 && hint < len")
	}
	ofs := 1
	lastOfs := 0
	if cmp(key, a[base+hint]) < 0 {
		// 从右往左 until a[base+hint-ofs] <= key < a[base+hint-lastOfs]
		maxOfs := hint + 1
		for ofs < maxOfs && cmp(key, a[base+hint-ofs]) < 0 {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 { // int overflow
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs, ofs = hint-ofs, hint-lastOfs
	} else { // a[base + hint] <= key
		// 从左往右 until a[base+hint+lastOfs] <= key < a[base+hint+ofs]
		maxOfs := len - hint
		for ofs < maxOfs && cmp(key, a[base+hint+ofs]) >= 0 {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 { // int overflow
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs += hint
		ofs += hint
	}
	if -1 > lastOfs || lastOfs >= ofs || ofs > len {
		panic("assert -1 <= lastOfs && lastOfs < ofs && ofs <= len")
	}

	lastOfs++
	for lastOfs < ofs {
		m := lastOfs + ((ofs - lastOfs) >> 1)
		if cmp(key, a[base+m]) < 0 {
			ofs = m // key < a[b + m]
		} else {
			lastOfs = m + 1 // a[b + m] <= key
		}
	}
	return ofs
}
