/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package kv implements the ordered key/value substrate HiveBase's engine is
built on: three independently-ordered keyspaces (main, indexes, meta), each
backed by an in-memory B-tree, with a write-ahead log for crash recovery.

B-Tree:

Each keyspace is a balanced tree providing O(log N) search, insert, and
delete, plus ordered range scans for prefix queries against index and
primary-row keys.
*/
package kv

// btreeNode is a node in a bTree.
type btreeNode struct {
	keys     []string
	values   [][]byte
	children []*btreeNode
	leaf     bool
}

// bTree is a balanced tree mapping string keys to []byte values, used as
// the in-memory representation of a single keyspace.
//
// Callers are responsible for their own synchronization; kv.Store holds
// the lock that makes concurrent access to a bTree safe.
type bTree struct {
	root *btreeNode
	t    int // minimum degree
}

func newBTree(t int) *bTree {
	return &bTree{root: &btreeNode{leaf: true}, t: t}
}

func (bt *bTree) Search(key string) ([]byte, bool) {
	return bt.searchNode(bt.root, key)
}

func (bt *bTree) searchNode(node *btreeNode, key string) ([]byte, bool) {
	i := 0
	for i < len(node.keys) && key > node.keys[i] {
		i++
	}
	if i < len(node.keys) && node.keys[i] == key {
		return node.values[i], true
	}
	if node.leaf {
		return nil, false
	}
	return bt.searchNode(node.children[i], key)
}

func (bt *bTree) Insert(key string, value []byte) {
	root := bt.root
	if len(root.keys) == 2*bt.t-1 {
		newRoot := &btreeNode{leaf: false}
		newRoot.children = append(newRoot.children, root)
		bt.splitChild(newRoot, 0)
		bt.root = newRoot
		bt.insertNonFull(newRoot, key, value)
	} else {
		bt.insertNonFull(root, key, value)
	}
}

func (bt *bTree) insertNonFull(node *btreeNode, key string, value []byte) {
	i := len(node.keys) - 1

	if node.leaf {
		for i >= 0 && key < node.keys[i] {
			i--
		}
		if i >= 0 && node.keys[i] == key {
			node.values[i] = value
			return
		}
		node.keys = append(node.keys, "")
		node.values = append(node.values, nil)
		copy(node.keys[i+2:], node.keys[i+1:])
		copy(node.values[i+2:], node.values[i+1:])
		node.keys[i+1] = key
		node.values[i+1] = value
		return
	}

	for i >= 0 && key < node.keys[i] {
		i--
	}
	i++
	if len(node.children[i].keys) == 2*bt.t-1 {
		bt.splitChild(node, i)
		if key > node.keys[i] {
			i++
		}
	}
	bt.insertNonFull(node.children[i], key, value)
}

func (bt *bTree) splitChild(node *btreeNode, i int) {
	t := bt.t
	child := node.children[i]
	newNode := &btreeNode{leaf: child.leaf}

	midKey := child.keys[t-1]
	midVal := child.values[t-1]

	newNode.keys = append(newNode.keys, child.keys[t:]...)
	newNode.values = append(newNode.values, child.values[t:]...)
	child.keys = child.keys[:t-1]
	child.values = child.values[:t-1]

	if !child.leaf {
		newNode.children = append(newNode.children, child.children[t:]...)
		child.children = child.children[:t]
	}

	node.keys = append(node.keys, "")
	node.values = append(node.values, nil)
	copy(node.keys[i+1:], node.keys[i:])
	copy(node.values[i+1:], node.values[i:])
	node.keys[i] = midKey
	node.values[i] = midVal

	node.children = append(node.children, nil)
	copy(node.children[i+2:], node.children[i+1:])
	node.children[i+1] = newNode
}

func (bt *bTree) Delete(key string) bool {
	if bt.root == nil || len(bt.root.keys) == 0 {
		return false
	}
	deleted := bt.deleteFromNode(bt.root, key)
	if len(bt.root.keys) == 0 && !bt.root.leaf {
		bt.root = bt.root.children[0]
	}
	return deleted
}

func (bt *bTree) deleteFromNode(node *btreeNode, key string) bool {
	i := 0
	for i < len(node.keys) && key > node.keys[i] {
		i++
	}

	if i < len(node.keys) && node.keys[i] == key {
		if node.leaf {
			node.keys = append(node.keys[:i], node.keys[i+1:]...)
			node.values = append(node.values[:i], node.values[i+1:]...)
			return true
		}
		predKey, predVal := bt.getPredecessor(node, i)
		node.keys[i] = predKey
		node.values[i] = predVal
		return bt.deleteFromNode(node.children[i], predKey)
	}

	if node.leaf {
		return false
	}

	if len(node.children[i].keys) < bt.t {
		bt.fillChild(node, i)
		if i > len(node.keys) {
			i--
		}
	}

	return bt.deleteFromNode(node.children[i], key)
}

func (bt *bTree) getPredecessor(node *btreeNode, i int) (string, []byte) {
	curr := node.children[i]
	for !curr.leaf {
		curr = curr.children[len(curr.children)-1]
	}
	return curr.keys[len(curr.keys)-1], curr.values[len(curr.values)-1]
}

func (bt *bTree) fillChild(node *btreeNode, i int) {
	if i > 0 && len(node.children[i-1].keys) >= bt.t {
		bt.borrowFromPrev(node, i)
	} else if i < len(node.children)-1 && len(node.children[i+1].keys) >= bt.t {
		bt.borrowFromNext(node, i)
	} else if i < len(node.children)-1 {
		bt.mergeChildren(node, i)
	} else {
		bt.mergeChildren(node, i-1)
	}
}

func (bt *bTree) borrowFromPrev(node *btreeNode, i int) {
	child := node.children[i]
	sibling := node.children[i-1]

	child.keys = append([]string{node.keys[i-1]}, child.keys...)
	child.values = append([][]byte{node.values[i-1]}, child.values...)

	node.keys[i-1] = sibling.keys[len(sibling.keys)-1]
	node.values[i-1] = sibling.values[len(sibling.values)-1]
	sibling.keys = sibling.keys[:len(sibling.keys)-1]
	sibling.values = sibling.values[:len(sibling.values)-1]

	if !child.leaf {
		child.children = append([]*btreeNode{sibling.children[len(sibling.children)-1]}, child.children...)
		sibling.children = sibling.children[:len(sibling.children)-1]
	}
}

func (bt *bTree) borrowFromNext(node *btreeNode, i int) {
	child := node.children[i]
	sibling := node.children[i+1]

	child.keys = append(child.keys, node.keys[i])
	child.values = append(child.values, node.values[i])

	node.keys[i] = sibling.keys[0]
	node.values[i] = sibling.values[0]
	sibling.keys = sibling.keys[1:]
	sibling.values = sibling.values[1:]

	if !child.leaf {
		child.children = append(child.children, sibling.children[0])
		sibling.children = sibling.children[1:]
	}
}

func (bt *bTree) mergeChildren(node *btreeNode, i int) {
	child := node.children[i]
	sibling := node.children[i+1]

	child.keys = append(child.keys, node.keys[i])
	child.values = append(child.values, node.values[i])
	child.keys = append(child.keys, sibling.keys...)
	child.values = append(child.values, sibling.values...)

	if !child.leaf {
		child.children = append(child.children, sibling.children...)
	}

	node.keys = append(node.keys[:i], node.keys[i+1:]...)
	node.values = append(node.values[:i], node.values[i+1:]...)
	node.children = append(node.children[:i+1], node.children[i+2:]...)
}

// KV is a single key/value pair returned from a range scan.
type KV struct {
	Key   string
	Value []byte
}

// Range returns every key in [start, end), in ascending order, honoring
// limit when limit > 0.
func (bt *bTree) Range(start, end string, limit int) []KV {
	var result []KV
	bt.rangeNode(bt.root, start, end, limit, &result)
	return result
}

func (bt *bTree) rangeNode(node *btreeNode, start, end string, limit int, result *[]KV) {
	if node == nil || (limit > 0 && len(*result) >= limit) {
		return
	}

	i := 0
	if start != "" {
		for i < len(node.keys) && node.keys[i] < start {
			i++
		}
	}

	for i < len(node.keys) {
		if limit > 0 && len(*result) >= limit {
			return
		}

		if !node.leaf && i < len(node.children) {
			bt.rangeNode(node.children[i], start, end, limit, result)
			if limit > 0 && len(*result) >= limit {
				return
			}
		}

		if end != "" && node.keys[i] >= end {
			return
		}

		if (start == "" || node.keys[i] >= start) && (end == "" || node.keys[i] < end) {
			*result = append(*result, KV{Key: node.keys[i], Value: node.values[i]})
		}

		i++
	}

	if !node.leaf && i < len(node.children) {
		bt.rangeNode(node.children[i], start, end, limit, result)
	}
}

func (bt *bTree) Size() int {
	return bt.sizeNode(bt.root)
}

func (bt *bTree) sizeNode(node *btreeNode) int {
	if node == nil {
		return 0
	}
	count := len(node.keys)
	for _, child := range node.children {
		count += bt.sizeNode(child)
	}
	return count
}
