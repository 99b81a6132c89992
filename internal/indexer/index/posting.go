package index

// Posting records one term's occurrence in one document: its raw frequency
// and tf-idf weight.
type Posting struct {
	DocID     int     `json:"d"`
	Frequency int     `json:"f"`
	Weight    float64 `json:"w"`
}

// PostingList holds the postings of a single term ordered by ascending
// DocID, with no DocID repeated.
type PostingList []Posting

// DocIDs returns the document ids of the list in order.
func (pl PostingList) DocIDs() []int {
	ids := make([]int, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Sorted reports whether the list is strictly ascending by DocID.
func (pl PostingList) Sorted() bool {
	for i := 1; i < len(pl); i++ {
		if pl[i-1].DocID >= pl[i].DocID {
			return false
		}
	}
	return true
}

type TermEntry struct {
	Term     string
	Postings PostingList
}

// TermFrequency pairs a term with its document frequency.
type TermFrequency struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}

// DocFreqCount is one bucket of the document frequency histogram: Terms
// vocabulary terms occur in exactly DocFreq documents.
type DocFreqCount struct {
	DocFreq int `json:"doc_freq"`
	Terms   int `json:"terms"`
}
