// Package flagfile implements the FlagFilePublisher component: creation and
// removal of the zero-content marker files on disk that signal an active
// offer to every consumer process's DiscoveryClient.
package flagfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// qualityQM and qualityB are the literal quality tags embedded in a flag
// file's name.
const (
	qualityQM = "asil-qm"
	qualityB  = "asil-b"
)

// disambiguatorSeq is a process-wide monotonic counter standing in for a
// steady clock: it guarantees successive offers from this pid never reuse a
// flag-file name, without depending on wall clock resolution.
var disambiguatorSeq uint64

func nextDisambiguator() uint64 {
	return atomic.AddUint64(&disambiguatorSeq, 1)
}

// offerRecord tracks the flag files created for one offered instance so
// that StopOffer can remove exactly the right ones. Stale files from this
// pid are found by clearOwnStaleFiles' directory scan, not through this
// record.
type offerRecord struct {
	qmPath string
	bPath  string
}

// Publisher creates and removes per-offer marker files under root, laid
// out as <root>/<service_id>/<instance_id>/<pid>_<quality>_<disambiguator>.
// Filesystem access goes through an afero.Fs, matching the teacher's
// ioFileService/IOnodeFile split between the real OS filesystem and an
// in-memory one for tests.
type Publisher struct {
	fs   afero.Fs
	root string
	pid  int

	mu      sync.Mutex
	offered map[string]*offerRecord
}

// NewPublisher builds a publisher rooted at root (e.g.
// "/tmp/mw_com_lola/service_discovery" on generic Linux) backed by the real
// OS filesystem.
func NewPublisher(root string) *Publisher {
	return NewPublisherWithFs(root, afero.NewOsFs())
}

// NewPublisherWithFs builds a publisher over an injected afero.Fs, the seam
// tests use to run against afero.NewMemMapFs() instead of touching disk.
func NewPublisherWithFs(root string, fs afero.Fs) *Publisher {
	return &Publisher{
		fs:      fs,
		root:    root,
		pid:     os.Getpid(),
		offered: make(map[string]*offerRecord),
	}
}

func instanceDirKey(id identity.InstanceIdentifier) string {
	return fmt.Sprintf("%d/%s", id.ServiceType.ServiceID, id.Instance.InstanceID)
}

func (p *Publisher) instanceDir(id identity.InstanceIdentifier) string {
	return filepath.Join(
		p.root,
		strconv.Itoa(int(id.ServiceType.ServiceID)),
		strconv.Itoa(int(id.Instance.InstanceID.Value())),
	)
}

func (p *Publisher) flagFileName(quality string, disambig uint64) string {
	return fmt.Sprintf("%d_%s_%d", p.pid, quality, disambig)
}

// clearOwnStaleFiles removes any pre-existing files in dir whose name is
// stamped with this process's pid: recovery after an unclean shutdown of a
// previous invocation that happened to reuse this pid.
func (p *Publisher) clearOwnStaleFiles(dir string) error {
	prefix := strconv.Itoa(p.pid) + "_"

	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			if rmErr := p.fs.Remove(filepath.Join(dir, e.Name())); rmErr != nil && !os.IsNotExist(rmErr) {
				return rmErr
			}
		}
	}
	return nil
}

// Offer creates the flag file(s) for id's quality. Quality B creates two
// files (one asil-qm, one asil-b); quality QM creates only the asil-qm
// file. id must carry a concrete instance id — offering a find-any
// template is a programmer error.
func (p *Publisher) Offer(id identity.InstanceIdentifier) error {
	if id.IsFindAny() {
		panic("flagfile: Offer called with a find-any InstanceIdentifier")
	}

	dir := p.instanceDir(id)
	key := instanceDirKey(id)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", mwerrors.ErrServiceNotOffered, dir, err)
	}

	if err := p.clearOwnStaleFiles(dir); err != nil {
		return fmt.Errorf("%w: clearing stale files in %s: %v", mwerrors.ErrServiceNotOffered, dir, err)
	}

	var created []string
	rollback := func() {
		for _, f := range created {
			_ = p.fs.Remove(f)
		}
	}

	create := func(quality string) (string, error) {
		name := p.flagFileName(quality, nextDisambiguator())
		path := filepath.Join(dir, name)
		f, err := p.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return "", err
		}
		_ = f.Close()
		created = append(created, path)
		return path, nil
	}

	rec := &offerRecord{}

	qmPath, err := create(qualityQM)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %v", mwerrors.ErrServiceNotOffered, err)
	}
	rec.qmPath = qmPath

	if id.Instance.Quality == identity.QualityB {
		bPath, err := create(qualityB)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %v", mwerrors.ErrServiceNotOffered, err)
		}
		rec.bPath = bPath
	}

	p.offered[key] = rec

	logrus.Infof("flagfile: offered %s (pid=%d)", id, p.pid)
	return nil
}

// StopOffer deletes the matching files. selector=QualitySelectorQM leaves
// the asil-b file intact even if the instance was offered at quality B.
func (p *Publisher) StopOffer(id identity.InstanceIdentifier, selector domain.QualityTypeSelector) error {
	key := instanceDirKey(id)

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.offered[key]
	if !ok {
		return nil
	}

	if selector == domain.QualitySelectorBoth || selector == domain.QualitySelectorQM {
		if rec.qmPath != "" {
			if err := p.fs.Remove(rec.qmPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			rec.qmPath = ""
		}
	}

	if selector == domain.QualitySelectorBoth {
		if rec.bPath != "" {
			if err := p.fs.Remove(rec.bPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			rec.bPath = ""
		}
	}

	if rec.qmPath == "" && rec.bPath == "" {
		delete(p.offered, key)
	}

	logrus.Infof("flagfile: stopped offer %s (selector=%v)", id, selector)
	return nil
}
