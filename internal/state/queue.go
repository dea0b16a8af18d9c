package state

// LoadQueue reads queue.json. A missing file is an empty queue.
func (s *Store) LoadQueue() (*QueueFile, error) {
	q := &QueueFile{}
	if _, err := s.readJSON(QueuePath, q); err != nil {
		return nil, err
	}
	if q.Items == nil {
		q.Items = []string{}
	}
	return q, nil
}

// SaveQueue replaces queue.json.
func (s *Store) SaveQueue(q *QueueFile) error {
	if q.Items == nil {
		q = &QueueFile{Items: []string{}}
	}
	return s.writeJSON(QueuePath, q)
}

// AddToQueue appends name to the tail of the queue and returns its 1-based
// position.
func (s *Store) AddToQueue(name string) (int, error) {
	q, err := s.LoadQueue()
	if err != nil {
		return 0, err
	}
	q.Items = append(q.Items, name)
	if err := s.SaveQueue(q); err != nil {
		return 0, err
	}
	return len(q.Items), nil
}

// PopQueue removes and returns the head of the queue. The boolean is false
// when the queue is empty.
func (s *Store) PopQueue() (string, bool, error) {
	q, err := s.LoadQueue()
	if err != nil {
		return "", false, err
	}
	if len(q.Items) == 0 {
		return "", false, nil
	}

	head := q.Items[0]
	q.Items = q.Items[1:]
	if err := s.SaveQueue(q); err != nil {
		return "", false, err
	}
	return head, true, nil
}
