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

package sched

// nilLink is the end-of-queue sentinel for the 16-bit slot links.
const nilLink int16 = -1

// queue threads slots together through their next links. No allocation
// happens after construction; the nodes live in the slot table itself.
// Only the loop goroutine touches queues.
type queue struct {
	head int16
	tail int16
	size int
}

func newQueue() queue {
	return queue{head: nilLink, tail: nilLink}
}

func (q *queue) empty() bool {
	return q.head == nilLink
}

// push appends idx at the tail.
func (q *queue) push(s *Scheduler, idx int16) {
	s.slots[idx].next = nilLink
	if q.tail == nilLink {
		q.head = idx
	} else {
		s.slots[q.tail].next = idx
	}
	q.tail = idx
	q.size++
}

// insertByDeadline places idx before the first entry with a strictly later
// deadline. Equal deadlines keep submission order.
func (q *queue) insertByDeadline(s *Scheduler, idx int16) {
	d := s.slots[idx].deadline
	var prev int16 = nilLink
	cur := q.head
	for cur != nilLink && s.slots[cur].deadline.Sub(d) <= 0 {
		prev = cur
		cur = s.slots[cur].next
	}

	s.slots[idx].next = cur
	if prev == nilLink {
		q.head = idx
	} else {
		s.slots[prev].next = idx
	}
	if cur == nilLink {
		q.tail = idx
	}
	q.size++
}

// pop removes and returns the head, or nilLink when empty.
func (q *queue) pop(s *Scheduler) int16 {
	idx := q.head
	if idx == nilLink {
		return nilLink
	}
	q.head = s.slots[idx].next
	if q.head == nilLink {
		q.tail = nilLink
	}
	s.slots[idx].next = nilLink
	q.size--
	return idx
}
